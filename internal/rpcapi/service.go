package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// PublisherServer is the server side of the capability-RPC "Publisher"
// capability (§6): subscribe, and the input/window/mode accessors.
type PublisherServer interface {
	Subscribe(*ServiceSub, Publisher_SubscribeServer) error
	SetInput(context.Context, *InputSettings) (*Empty, error)
	GetInputs(context.Context, *Empty) (*Inputs, error)
	QueryMode(context.Context, *Empty) (*ModeResponse, error)
	SetWindow(context.Context, *WindowRequest) (*Empty, error)
	GetWindow(context.Context, *Empty) (*WindowResponse, error)
}

// Publisher_SubscribeServer streams ServicePub frames to one subscriber for
// the lifetime of its Subscribe call; it is the RPC realization of the
// capability schema's opaque Subscriber<T>.push_message.
type Publisher_SubscribeServer interface {
	Send(*ServicePub) error
	grpc.ServerStream
}

type publisherSubscribeServer struct{ grpc.ServerStream }

func (x *publisherSubscribeServer) Send(m *ServicePub) error { return x.ServerStream.SendMsg(m) }

func _Publisher_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	sub := new(ServiceSub)
	if err := stream.RecvMsg(sub); err != nil {
		return err
	}
	return srv.(PublisherServer).Subscribe(sub, &publisherSubscribeServer{stream})
}

func _Publisher_SetInput_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InputSettings)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).SetInput(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Publisher/SetInput"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).SetInput(ctx, req.(*InputSettings))
	}
	return interceptor(ctx, in, info, handler)
}

func _Publisher_GetInputs_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).GetInputs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Publisher/GetInputs"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).GetInputs(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Publisher_QueryMode_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).QueryMode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Publisher/QueryMode"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).QueryMode(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Publisher_SetWindow_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WindowRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).SetWindow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Publisher/SetWindow"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).SetWindow(ctx, req.(*WindowRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Publisher_GetWindow_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).GetWindow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Publisher/GetWindow"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).GetWindow(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// PublisherServiceDesc is the hand-written replacement for a generated
// grpc.ServiceDesc; no .proto file backs this, see codec.go.
var PublisherServiceDesc = grpc.ServiceDesc{
	ServiceName: "tagstreamd.Publisher",
	HandlerType: (*PublisherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetInput", Handler: _Publisher_SetInput_Handler},
		{MethodName: "GetInputs", Handler: _Publisher_GetInputs_Handler},
		{MethodName: "QueryMode", Handler: _Publisher_QueryMode_Handler},
		{MethodName: "SetWindow", Handler: _Publisher_SetWindow_Handler},
		{MethodName: "GetWindow", Handler: _Publisher_GetWindow_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _Publisher_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "rpcapi/publisher",
}

// RegisterPublisherServer registers srv's RPC surface on s.
func RegisterPublisherServer(s grpc.ServiceRegistrar, srv PublisherServer) {
	s.RegisterService(&PublisherServiceDesc, srv)
}

// TaggerServer is the server side of the batch-job capability (§4.G/§4.H),
// plus the supplemented CancelJob operation (DESIGN.md Open Question 3).
type TaggerServer interface {
	SubmitJob(context.Context, *JobReq) (*JobSubmission, error)
	QueryJobDone(context.Context, *JobIDRequest) (*JobStatusResponse, error)
	GetResults(context.Context, *JobIDRequest) (*JobPayload, error)
	CancelJob(context.Context, *JobIDRequest) (*JobStatusResponse, error)
	SetRecording(context.Context, *RecordingRequest) (*Empty, error)
}

func _Tagger_SubmitJob_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JobReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaggerServer).SubmitJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Tagger/SubmitJob"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaggerServer).SubmitJob(ctx, req.(*JobReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _Tagger_QueryJobDone_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JobIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaggerServer).QueryJobDone(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Tagger/QueryJobDone"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaggerServer).QueryJobDone(ctx, req.(*JobIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Tagger_GetResults_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JobIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaggerServer).GetResults(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Tagger/GetResults"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaggerServer).GetResults(ctx, req.(*JobIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Tagger_CancelJob_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JobIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaggerServer).CancelJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Tagger/CancelJob"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaggerServer).CancelJob(ctx, req.(*JobIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Tagger_SetRecording_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecordingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TaggerServer).SetRecording(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tagstreamd.Tagger/SetRecording"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TaggerServer).SetRecording(ctx, req.(*RecordingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// TaggerServiceDesc is the hand-written replacement for a generated
// grpc.ServiceDesc.
var TaggerServiceDesc = grpc.ServiceDesc{
	ServiceName: "tagstreamd.Tagger",
	HandlerType: (*TaggerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: _Tagger_SubmitJob_Handler},
		{MethodName: "QueryJobDone", Handler: _Tagger_QueryJobDone_Handler},
		{MethodName: "GetResults", Handler: _Tagger_GetResults_Handler},
		{MethodName: "CancelJob", Handler: _Tagger_CancelJob_Handler},
		{MethodName: "SetRecording", Handler: _Tagger_SetRecording_Handler},
	},
	Metadata: "rpcapi/tagger",
}

// RegisterTaggerServer registers srv's RPC surface on s.
func RegisterTaggerServer(s grpc.ServiceRegistrar, srv TaggerServer) {
	s.RegisterService(&TaggerServiceDesc, srv)
}
