// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solatis/microproto/internal/core/api"
	"github.com/solatis/microproto/internal/core/auth"
	"github.com/solatis/microproto/internal/core/config"
)

const (
	shutdownTimeout = 30 * time.Second

	// wrapper message framing on top of one protocol packet
	messageOverhead = 64
)

// healthMethods stay reachable without a key so health checks need no secrets.
var healthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.health.v1.Health/List",
}

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config config.ServerConfig
}

// NewGRPCServer creates the gRPC server with auth interceptors, the property
// service and the standard health service. A nil authenticator serves
// without authentication.
func NewGRPCServer(cfg config.ServerConfig, service api.PropertyServiceServer, authenticator *auth.Authenticator) (*GRPCServer, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxPacketSize + messageOverhead),
	}
	if authenticator != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor(healthMethods...)),
			grpc.ChainStreamInterceptor(authenticator.StreamInterceptor(healthMethods...)),
		)
	}

	server := grpc.NewServer(opts...)
	api.RegisterPropertyServiceServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Start binds the configured address and serves until Shutdown is called.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.GRPCAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	return s.server.Serve(listener)
}

// Shutdown marks the server NOT_SERVING and stops it gracefully, forcing
// the stop after 30 seconds or when ctx ends. Open Connect streams only end
// when their clients hang up, so callers bound ctx.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
