// Package grpcserver runs the gRPC side of the service. It exposes the
// standard grpc.health.v1.Health service whose status follows the storage
// health.
package grpcserver

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/patric-chuzhbe/students/internal/grpcserver/interceptor"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "students"

// Server is a gRPC server with the health service registered.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

// New listens on addr. The health status starts as NOT_SERVING.
func New(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor([]string{
				"/grpc.health.v1.Health/Check",
			}),
		),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	s := &Server{
		server:   server,
		health:   healthServer,
		listener: lis,
	}
	s.SetServing(false)

	return s, nil
}

// SetServing updates the overall and the service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Addr is the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks until the server stops.
func (s *Server) Serve() error {
	return s.server.Serve(s.listener)
}

// GracefulStop marks every service as not serving and waits for pending RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// Close stops a server that may never have been served and releases its listener.
func (s *Server) Close() error {
	s.health.Shutdown()
	s.server.Stop()

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
