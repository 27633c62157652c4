package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer returns a gRPC server with tracing, request ids, call logging and
// the standard health service registered.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}

// MirrorReadiness sets the health status of service from the readiness checks
// until ctx is done. On return every service is marked NOT_SERVING.
func MirrorReadiness(ctx context.Context, hs *health.Server, service string, interval time.Duration, checks ...runtime.ReadyCheck) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if len(runtime.RunChecks(ctx, checks)) > 0 {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(service, st)
		hs.SetServingStatus("", st)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
