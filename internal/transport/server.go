package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Receiver accepts raw payloads. Implementations must not block.
type Receiver interface {
	Deliver(payload []byte)
}

// Server exposes a Receiver over gRPC.
type Server struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
	recv   Receiver
	log    *zap.Logger
}

// NewServer creates a server for recv listening on addr.
func NewServer(addr string, recv Receiver, logger *zap.Logger) (*Server, error) {
	if recv == nil {
		return nil, fmt.Errorf("receiver must be provided")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		addr:   addr,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		recv:   recv,
		log:    logger.Named("transport"),
	}
	s.srv.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(s.srv)

	return s, nil
}

// Deliver implements the Transport service.
func (s *Server) Deliver(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	s.recv.Deliver(in.GetValue())
	return &emptypb.Empty{}, nil
}

// Start listens on the configured address and serves until Stop. It blocks.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop. It blocks.
func (s *Server) Serve(lis net.Listener) error {
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.log.Info("transport listening", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// Stop drains in-flight calls and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
