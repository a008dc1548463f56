package rpcapi

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// grpcServerStreamStub satisfies grpc.ServerStream with no-ops, so tests can
// embed it into a minimal fake Publisher_SubscribeServer without pulling in
// a real transport.
type grpcServerStreamStub struct{}

func (grpcServerStreamStub) SetHeader(metadata.MD) error  { return nil }
func (grpcServerStreamStub) SendHeader(metadata.MD) error { return nil }
func (grpcServerStreamStub) SetTrailer(metadata.MD)       {}
func (grpcServerStreamStub) Context() context.Context     { return context.Background() }
func (grpcServerStreamStub) SendMsg(m any) error           { return nil }
func (grpcServerStreamStub) RecvMsg(m any) error           { return nil }
