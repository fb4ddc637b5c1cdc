package grpcx

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard grpc.health.v1 service so orchestrators can
// probe the process over gRPC. Each dependency check maps to a named service.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
	checks map[string]func(context.Context) error
}

func NewHealthServer(logger *zap.Logger, checks map[string]func(context.Context) error) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs, logger: logger, checks: checks}
}

// Refresh runs every check once and publishes the resulting serving status.
// The overall ("") status is SERVING only when all checks pass.
func (h *HealthServer) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		status := healthpb.HealthCheckResponse_SERVING
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := check(cctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()
		h.health.SetServingStatus(name, status)
	}
	h.health.SetServingStatus("", overall)
}

// Serve listens on addr until ctx is cancelled, refreshing statuses every interval.
func (h *HealthServer) Serve(ctx context.Context, addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	h.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.server.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()

	h.logger.Info("grpc health server starting", zap.String("addr", addr))
	return h.server.Serve(lis)
}
