package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/tombstone/internal/api"
)

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the Tombstone service and reflection, and returns the server
// ready to serve. When authToken is non-empty every call except Health must
// carry it as a Bearer token.
func NewGRPCServer(srv *Server, authToken string) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor(srv.logger),
			AuthInterceptor(authToken),
			TenantInterceptor,
			ErrorInterceptor,
		),
	)

	api.RegisterTombstoneServer(gs, srv)
	reflection.Register(gs)

	return gs
}
