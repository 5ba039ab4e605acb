package server

import (
	"context"
	"dm-lab/api/account"
	pb "dm-lab/api/chat"
	"dm-lab/auth"
	"dm-lab/gateway"
	"dm-lab/infrastructure/storage"
	"dm-lab/runtime"
	"dm-lab/services"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const password = "ComplexPass123!"

type harness struct {
	chat     pb.ChatServiceClient
	account  account.AuthServiceClient
	registry *runtime.Registry
}

func newHarness(t *testing.T, config gateway.Config) *harness {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)

	messages := storage.NewMessageRepository(db, log, 5)
	registry := runtime.NewRegistry()
	coordinator := services.NewDeliveryService(log, messages, registry, 1000, true)
	history := services.NewHistoryService(messages)
	authService := services.NewAuthService(storage.NewUserRepository(db), "test-secret", time.Hour)
	interceptor := auth.NewInterceptor(authService,
		account.AuthService_Login_FullMethodName,
		account.AuthService_Register_FullMethodName,
	)

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Unary()),
		grpc.ChainStreamInterceptor(interceptor.Stream()),
	)
	pb.RegisterChatServiceServer(srv, NewChatServer(log, coordinator, history, gateway.NewGateway(log, registry, coordinator, config)))
	account.RegisterAuthServiceServer(srv, NewAuthServer(authService))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		_ = db.Close()
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		chat:     pb.NewChatServiceClient(conn),
		account:  account.NewAuthServiceClient(conn),
		registry: registry,
	}
}

// as registers username and returns a context carrying its token.
func (h *harness) as(t *testing.T, username string) context.Context {
	t.Helper()
	res, err := h.account.Register(context.Background(), &account.RegisterRequest{Username: username, Password: password})
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+res.Token)
}

func (h *harness) join(t *testing.T, ctx context.Context, identity string) grpc.BidiStreamingClient[pb.ClientEvent, pb.ServerEvent] {
	t.Helper()
	req := require.New(t)
	stream, err := h.chat.Connect(ctx)
	req.NoError(err)
	req.NoError(stream.Send(&pb.ClientEvent{Join: &pb.JoinEvent{Identity: identity}}))
	evt, err := stream.Recv()
	req.NoError(err)
	req.NotNil(evt.Joined)
	req.Equal(identity, evt.Joined.Identity)
	return stream
}

func TestChatServer_Online_Delivery(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})
	alice := h.as(t, "alice")
	bob := h.as(t, "bob")

	// Given bob is online
	bobStream := h.join(t, bob, "bob")

	// When alice posts a message to bob
	res, err := h.chat.PostMessage(alice, &pb.PostMessageRequest{Recipient: "bob", Content: "hello"})
	req.NoError(err)
	req.Equal("alice", res.Message.Sender)

	// Then bob receives the same persisted message
	evt, err := bobStream.Recv()
	req.NoError(err)
	req.NotNil(evt.Deliver)
	req.Equal(res.Message, evt.Deliver)

	// And it is in the history of both
	history, err := h.chat.GetHistory(bob, &pb.GetHistoryRequest{UserA: "alice", UserB: "bob"})
	req.NoError(err)
	req.Equal([]*pb.Message{res.Message}, history.Messages)
}

func TestChatServer_Offline_Then_History(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})
	alice := h.as(t, "alice")
	carol := h.as(t, "carol")

	// Given carol is offline
	first, err := h.chat.PostMessage(alice, &pb.PostMessageRequest{Recipient: "carol", Content: "are you there"})
	req.NoError(err)
	second, err := h.chat.PostMessage(carol, &pb.PostMessageRequest{Recipient: "alice", Content: "now I am"})
	req.NoError(err)

	// When carol reads the history, in either orientation
	fromCarol, err := h.chat.GetHistory(carol, &pb.GetHistoryRequest{UserA: "carol", UserB: "alice"})
	req.NoError(err)
	fromAlice, err := h.chat.GetHistory(alice, &pb.GetHistoryRequest{UserA: "alice", UserB: "carol"})
	req.NoError(err)

	// Then both see the messages in send order
	req.Equal([]*pb.Message{first.Message, second.Message}, fromCarol.Messages)
	req.Equal(fromCarol.Messages, fromAlice.Messages)

	partners, err := h.chat.GetPartners(carol, &pb.GetPartnersRequest{})
	req.NoError(err)
	req.Equal([]string{"alice"}, partners.Partners)
}

func TestChatServer_Live_Send(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})
	aliceStream := h.join(t, h.as(t, "alice"), "alice")
	bobStream := h.join(t, h.as(t, "bob"), "bob")

	// When alice sends over her live channel
	req.NoError(aliceStream.Send(&pb.ClientEvent{Send: &pb.SendEvent{Recipient: "bob", Content: "live"}}))

	// Then alice gets the persisted message back and bob gets it delivered
	sent, err := aliceStream.Recv()
	req.NoError(err)
	req.NotNil(sent.Sent)
	delivered, err := bobStream.Recv()
	req.NoError(err)
	req.Equal(sent.Sent, delivered.Deliver)

	// When alice sends an empty message
	req.NoError(aliceStream.Send(&pb.ClientEvent{Send: &pb.SendEvent{Recipient: "bob"}}))

	// Then the stream reports the error and stays open
	rejected, err := aliceStream.Recv()
	req.NoError(err)
	req.NotNil(rejected.Error)
	req.Equal(uint32(codes.InvalidArgument), rejected.Error.Code)
}

func TestChatServer_Send_Before_Join(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})

	stream, err := h.chat.Connect(h.as(t, "alice"))
	req.NoError(err)
	req.NoError(stream.Send(&pb.ClientEvent{Send: &pb.SendEvent{Recipient: "bob", Content: "hi"}}))

	_, err = stream.Recv()
	req.Equal(codes.FailedPrecondition, status.Code(err))
}

func TestChatServer_Join_As_Someone_Else(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})

	stream, err := h.chat.Connect(h.as(t, "mallory"))
	req.NoError(err)
	req.NoError(stream.Send(&pb.ClientEvent{Join: &pb.JoinEvent{Identity: "alice"}}))

	_, err = stream.Recv()
	req.Equal(codes.PermissionDenied, status.Code(err))
	req.Zero(h.registry.Online())
}

func TestChatServer_Disconnect_Unregisters(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})
	ctx, cancel := context.WithCancel(h.as(t, "bob"))

	h.join(t, ctx, "bob")
	req.Equal(1, h.registry.Online())

	cancel()

	req.Eventually(func() bool { return h.registry.Online() == 0 }, time.Second, 10*time.Millisecond)
}

func TestChatServer_Authorization(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 8, OverflowPolicy: runtime.OverflowDisconnect})
	carol := h.as(t, "carol")

	_, err := h.chat.PostMessage(context.Background(), &pb.PostMessageRequest{Recipient: "bob", Content: "x"})
	req.Equal(codes.Unauthenticated, status.Code(err))

	_, err = h.chat.GetHistory(carol, &pb.GetHistoryRequest{UserA: "alice", UserB: "bob"})
	req.Equal(codes.PermissionDenied, status.Code(err))

	_, err = h.chat.GetPartners(carol, &pb.GetPartnersRequest{User: "alice"})
	req.Equal(codes.PermissionDenied, status.Code(err))

	_, err = h.account.Register(context.Background(), &account.RegisterRequest{Username: "carol", Password: password})
	req.Equal(codes.AlreadyExists, status.Code(err))

	_, err = h.account.Login(context.Background(), &account.LoginRequest{Username: "carol", Password: "WrongPass123!"})
	req.Equal(codes.Unauthenticated, status.Code(err))

	res, err := h.account.Login(context.Background(), &account.LoginRequest{Username: "carol", Password: password})
	req.NoError(err)
	req.NotEmpty(res.Token)
}

func TestChatServer_Throttled_Sender_Keeps_Receiving(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, gateway.Config{BufferSize: 2, OverflowPolicy: runtime.OverflowDisconnect, SendRatePerSecond: 1})
	bob := h.as(t, "bob")
	ctx, cancel := context.WithTimeout(h.as(t, "alice"), 10*time.Second)
	defer cancel()
	aliceStream := h.join(t, ctx, "alice")

	// Given alice queues more sends than her rate allows
	for i := 0; i < 3; i++ {
		req.NoError(aliceStream.Send(&pb.ClientEvent{Send: &pb.SendEvent{Recipient: "bob", Content: fmt.Sprintf("out-%d", i)}}))
	}

	// When bob writes to her while her sends are throttled
	for i := 0; i < 3; i++ {
		_, err := h.chat.PostMessage(bob, &pb.PostMessageRequest{Recipient: "alice", Content: fmt.Sprintf("in-%d", i)})
		req.NoError(err)
	}

	// Then alice, reading all along, gets every delivery and every confirmation
	sent, delivered := 0, 0
	for sent < 3 || delivered < 3 {
		evt, err := aliceStream.Recv()
		req.NoError(err, "alice's stream must stay open while she reads")
		switch {
		case evt.Sent != nil:
			sent++
		case evt.Deliver != nil:
			delivered++
		default:
			req.Failf("unexpected event", "%+v", evt)
		}
	}
	req.Equal(1, h.registry.Online())
}
