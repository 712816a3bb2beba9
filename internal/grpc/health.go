package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

// LedgerServiceName is the health service name reported alongside the overall ("") status.
const LedgerServiceName = "ledger.v1.Ledger"

const pingTimeout = 2 * time.Second

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker keeps the gRPC health status in line with the store.
type HealthChecker struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
}

func NewHealthChecker(pinger Pinger, interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthChecker{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
	}
}

// Check pings the store once and updates the serving status.
func (c *HealthChecker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pingCtx); err != nil {
		logger.Warn("store ping failed", logger.Fields{"error": err.Error()})
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(LedgerServiceName, status)
	return status
}

// Run checks the store every interval until ctx is done, then marks the service as shutting down.
func (c *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// NewServer creates a gRPC server exposing the health service and reflection.
func NewServer(checker *HealthChecker, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, checker.server)
	// Register reflection service (useful for tools like grpcurl)
	reflection.Register(s)
	return s
}
