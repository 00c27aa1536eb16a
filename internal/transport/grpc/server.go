package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"chargeledger/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/v1"
)

// ServiceName is the health service name reported alongside the server-wide "" entry.
const ServiceName = "chargeledger.Ledger"

// Server exposes the standard grpc.health.v1 service. Its status follows
// periodic pings of the balance store.
type Server struct {
	svc      service.LedgerService
	srv      *grpc.Server
	health   *health.Server
	addr     string
	interval time.Duration
	logger   *slog.Logger
}

func NewServer(addr string, svc service.LedgerService, interval time.Duration, logger *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		srv:      grpc.NewServer(),
		health:   health.NewServer(),
		addr:     addr,
		interval: interval,
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go s.watch(ctx)

	s.logger.Info("gRPC health server listening", "addr", s.addr)
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()
	s.srv.GracefulStop()
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.Warn("store ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
