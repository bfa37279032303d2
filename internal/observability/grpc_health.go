package observability

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard grpc.health.v1 service, mirroring Readiness
type GRPCHealth struct {
	server    *grpc.Server
	health    *health.Server
	readiness *Readiness
	interval  time.Duration
	cancel    context.CancelFunc
}

// NewGRPCHealth creates the server; call Serve to start it
func NewGRPCHealth(readiness *Readiness, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{server: srv, health: hs, readiness: readiness, interval: interval}
}

// Refresh runs the readiness checks once and publishes the result
func (g *GRPCHealth) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, deps := g.readiness.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(serviceName, status)
	for name, dep := range deps {
		s := healthpb.HealthCheckResponse_SERVING
		if dep.Status != "healthy" {
			s = healthpb.HealthCheckResponse_NOT_SERVING
		}
		g.health.SetServingStatus(serviceName+"."+name, s)
	}
	return ok
}

// Serve refreshes status periodically and blocks serving on lis
func (g *GRPCHealth) Serve(lis net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	g.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (g *GRPCHealth) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.health.Shutdown()
	g.server.GracefulStop()
}
