// Package grpc runs the gRPC listener. It serves grpc.health.v1.Health with a
// status that follows the token store, and lexivault.auth.v1.Auth behind an
// access token check.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "lexivault.auth"

// Pinger reports whether the token store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type GRPCServer struct {
	address       string
	auth          *services.AuthService
	store         Pinger
	probeInterval time.Duration
	health        *health.Server
	logger        logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, auth *services.AuthService, store Pinger, probeInterval time.Duration) *GRPCServer {
	return &GRPCServer{
		address:       a,
		auth:          auth,
		store:         store,
		probeInterval: probeInterval,
		health:        health.NewServer(),
		logger:        l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	srv.RegisterService(&authServiceDesc, s)

	s.checkHealth(ctx)
	go s.probe(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	return srv.Serve(lis)
}

func (s *GRPCServer) probe(ctx context.Context) {
	if s.probeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *GRPCServer) checkHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.store.Ping(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "token store unreachable", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
