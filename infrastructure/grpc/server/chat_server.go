package server

import (
	"context"
	pb "dm-lab/api/chat"
	"dm-lab/auth"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"dm-lab/gateway"
	"dm-lab/runtime"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ChatServer struct {
	log         *slog.Logger
	coordinator contract.IDeliveryCoordinator
	history     contract.IHistoryService
	gateway     *gateway.Gateway
}

func NewChatServer(
	log *slog.Logger,
	coordinator contract.IDeliveryCoordinator,
	history contract.IHistoryService,
	gateway *gateway.Gateway,
) *ChatServer {
	return &ChatServer{log: log, coordinator: coordinator, history: history, gateway: gateway}
}

// PostMessage sends on behalf of the authenticated caller and returns the
// persisted message, whether or not the recipient is online.
func (s *ChatServer) PostMessage(ctx context.Context, req *pb.PostMessageRequest) (*pb.PostMessageResponse, error) {
	identity, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	message, err := s.coordinator.Send(ctx, domain.SendMessageCommand{
		Sender:    identity,
		Recipient: req.Recipient,
		Content:   req.Content,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.PostMessageResponse{Message: pb.FromDomain(message)}, nil
}

func (s *ChatServer) GetHistory(ctx context.Context, req *pb.GetHistoryRequest) (*pb.GetHistoryResponse, error) {
	identity, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.history.GetHistory(ctx, domain.GetHistoryCommand{
		Caller: identity,
		UserA:  req.UserA,
		UserB:  req.UserB,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.GetHistoryResponse{Messages: pb.FromDomainList(messages)}, nil
}

func (s *ChatServer) GetPartners(ctx context.Context, req *pb.GetPartnersRequest) (*pb.GetPartnersResponse, error) {
	identity, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	user := req.User
	if user == "" {
		user = identity
	}
	partners, err := s.history.GetPartners(ctx, domain.GetPartnersCommand{Caller: identity, User: user})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.GetPartnersResponse{Partners: partners}, nil
}

// Connect is the live channel of one session.
// A reader goroutine receives client events and runs them against the
// session, so a throttled or slow send never stalls the outbox. The handler
// goroutine is the only writer of the stream: it forwards the replies of the
// reader and drains the outbox of the joined connection. The call ends on
// client close, on a protocol violation or when the connection is closed for
// being too slow.
func (s *ChatServer) Connect(stream grpc.BidiStreamingServer[pb.ClientEvent, pb.ServerEvent]) error {
	ctx := stream.Context()
	identity, err := callerIdentity(ctx)
	if err != nil {
		return err
	}

	session := s.gateway.Open(identity)
	defer session.Close()

	replies := make(chan reply)
	go s.readEvents(ctx, stream, session, replies)

	// nil until join, a nil channel never fires in select
	var outbox <-chan domain.Message
	var closed <-chan struct{}
	var overflowed func() bool

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Client disconnected", "identity", identity)
			return nil

		case r := <-replies:
			if r.end {
				return r.err
			}
			if r.conn != nil {
				outbox, closed, overflowed = r.conn.Outbox(), r.conn.Done(), r.conn.Overflowed
			}
			if err := stream.Send(r.event); err != nil {
				return err
			}

		case message := <-outbox:
			if err := stream.Send(&pb.ServerEvent{Deliver: pb.FromDomain(message)}); err != nil {
				s.log.Error("Failed to push message to stream",
					"identity", identity,
					"message", message.ID,
					"error", err)
				return err
			}

		case <-closed:
			if overflowed() {
				return status.Error(codes.ResourceExhausted, errors.ErrSlowConsumer.Error())
			}
			return nil
		}
	}
}

// reply is what the reader hands to the stream writer.
// end stops the stream with err, conn is set once the session joined.
type reply struct {
	event *pb.ServerEvent
	conn  *runtime.LiveConnection
	end   bool
	err   error
}

func (s *ChatServer) readEvents(
	ctx context.Context,
	stream grpc.BidiStreamingServer[pb.ClientEvent, pb.ServerEvent],
	session *gateway.Session,
	replies chan<- reply,
) {
	emit := func(r reply) bool {
		select {
		case replies <- r:
			return !r.end
		case <-ctx.Done():
			return false
		}
	}

	for {
		evt, err := stream.Recv()
		if err == io.EOF {
			emit(reply{end: true})
			return
		}
		if err != nil {
			emit(reply{end: true, err: err})
			return
		}
		if !emit(s.handle(ctx, session, evt)) {
			return
		}
	}
}

func (s *ChatServer) handle(ctx context.Context, session *gateway.Session, evt *pb.ClientEvent) reply {
	switch {
	case evt.Join != nil:
		conn, err := session.Join(evt.Join.Identity)
		if errors.Is(err, errors.ErrAlreadyJoined) {
			return reply{event: errorEvent(err)}
		}
		if err != nil {
			return reply{end: true, err: errors.MapToGRPCError(err)}
		}
		return reply{conn: conn, event: &pb.ServerEvent{Joined: &pb.JoinedEvent{
			Identity:     session.Identity(),
			ConnectionId: conn.ID(),
		}}}

	case evt.Send != nil:
		message, err := session.Send(ctx, evt.Send.Recipient, evt.Send.Content)
		if errors.Is(err, errors.ErrNotJoined) {
			return reply{end: true, err: errors.MapToGRPCError(err)}
		}
		if err != nil {
			return reply{event: errorEvent(err)}
		}
		return reply{event: &pb.ServerEvent{Sent: pb.FromDomain(message)}}

	default:
		return reply{event: errorEvent(errors.ErrInvalidRequest)}
	}
}

func errorEvent(err error) *pb.ServerEvent {
	return &pb.ServerEvent{Error: &pb.ErrorEvent{
		Code:   uint32(status.Code(errors.MapToGRPCError(err))),
		Reason: err.Error(),
	}}
}

func callerIdentity(ctx context.Context) (domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no authenticated identity")
	}
	return identity, nil
}
