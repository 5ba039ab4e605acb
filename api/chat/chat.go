// Package chat holds the wire types, service descriptor and client of the
// gRPC direct messaging service. Messages travel CBOR encoded.
package chat

import (
	"context"
	"dm-lab/codec"

	"google.golang.org/grpc"
)

const (
	ChatService_PostMessage_FullMethodName = "/chat.ChatService/PostMessage"
	ChatService_GetHistory_FullMethodName  = "/chat.ChatService/GetHistory"
	ChatService_GetPartners_FullMethodName = "/chat.ChatService/GetPartners"
	ChatService_Connect_FullMethodName     = "/chat.ChatService/Connect"
)

type Message struct {
	Id        string `cbor:"1,keyasint"`
	Sender    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	Content   string `cbor:"4,keyasint"`
	Sequence  uint64 `cbor:"5,keyasint"`
	CreatedAt int64  `cbor:"6,keyasint"` // unix nanoseconds
}

// PostMessageRequest is sent on behalf of the authenticated caller.
type PostMessageRequest struct {
	Recipient string `cbor:"1,keyasint"`
	Content   string `cbor:"2,keyasint"`
}

type PostMessageResponse struct {
	Message *Message `cbor:"1,keyasint"`
}

type GetHistoryRequest struct {
	UserA string `cbor:"1,keyasint"`
	UserB string `cbor:"2,keyasint"`
}

type GetHistoryResponse struct {
	Messages []*Message `cbor:"1,keyasint"`
}

type GetPartnersRequest struct {
	User string `cbor:"1,keyasint"`
}

type GetPartnersResponse struct {
	Partners []string `cbor:"1,keyasint"`
}

// ClientEvent carries exactly one of its fields.
type ClientEvent struct {
	Join *JoinEvent `cbor:"1,keyasint,omitempty"`
	Send *SendEvent `cbor:"2,keyasint,omitempty"`
}

type JoinEvent struct {
	Identity string `cbor:"1,keyasint"`
}

type SendEvent struct {
	Recipient string `cbor:"1,keyasint"`
	Content   string `cbor:"2,keyasint"`
}

// ServerEvent carries exactly one of its fields.
type ServerEvent struct {
	Joined  *JoinedEvent `cbor:"1,keyasint,omitempty"`
	Sent    *Message     `cbor:"2,keyasint,omitempty"`
	Deliver *Message     `cbor:"3,keyasint,omitempty"`
	Error   *ErrorEvent  `cbor:"4,keyasint,omitempty"`
}

type JoinedEvent struct {
	Identity     string `cbor:"1,keyasint"`
	ConnectionId string `cbor:"2,keyasint"`
}

// ErrorEvent reports a rejected send without closing the stream.
type ErrorEvent struct {
	Code   uint32 `cbor:"1,keyasint"`
	Reason string `cbor:"2,keyasint"`
}

type ChatServiceServer interface {
	PostMessage(context.Context, *PostMessageRequest) (*PostMessageResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	GetPartners(context.Context, *GetPartnersRequest) (*GetPartnersResponse, error)
	Connect(grpc.BidiStreamingServer[ClientEvent, ServerEvent]) error
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

func _ChatService_PostMessage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PostMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).PostMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ChatService_PostMessage_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).PostMessage(ctx, req.(*PostMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_GetHistory_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ChatService_GetHistory_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).GetHistory(ctx, req.(*GetHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_GetPartners_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetPartnersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).GetPartners(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ChatService_GetPartners_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).GetPartners(ctx, req.(*GetPartnersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_Connect_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).Connect(&grpc.GenericServerStream[ClientEvent, ServerEvent]{ServerStream: stream})
}

var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "chat.ChatService",
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PostMessage", Handler: _ChatService_PostMessage_Handler},
		{MethodName: "GetHistory", Handler: _ChatService_GetHistory_Handler},
		{MethodName: "GetPartners", Handler: _ChatService_GetPartners_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _ChatService_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "chat",
}

type ChatServiceClient interface {
	PostMessage(ctx context.Context, in *PostMessageRequest, opts ...grpc.CallOption) (*PostMessageResponse, error)
	GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error)
	GetPartners(ctx context.Context, in *GetPartnersRequest, opts ...grpc.CallOption) (*GetPartnersResponse, error)
	Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientEvent, ServerEvent], error)
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc}
}

func (c *chatServiceClient) PostMessage(ctx context.Context, in *PostMessageRequest, opts ...grpc.CallOption) (*PostMessageResponse, error) {
	out := new(PostMessageResponse)
	if err := c.cc.Invoke(ctx, ChatService_PostMessage_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatServiceClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	out := new(GetHistoryResponse)
	if err := c.cc.Invoke(ctx, ChatService_GetHistory_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatServiceClient) GetPartners(ctx context.Context, in *GetPartnersRequest, opts ...grpc.CallOption) (*GetPartnersResponse, error) {
	out := new(GetPartnersResponse)
	if err := c.cc.Invoke(ctx, ChatService_GetPartners_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chatServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientEvent, ServerEvent], error) {
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[0], ChatService_Connect_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ClientEvent, ServerEvent]{ClientStream: stream}, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codec.Name)}, opts...)
}
