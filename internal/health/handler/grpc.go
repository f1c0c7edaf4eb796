// Package handler reports readiness over the standard grpc.health.v1 service and GET /healthz.
package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server runs the dependency checks and mirrors the result into a grpc health server.
// Nil dependencies are skipped.
type Server struct {
	db     Pinger
	redis  redis.Cmdable
	policy PolicyChecker
	grpc   *health.Server
	logger *zap.Logger
}

// NewServer returns a Server. Any argument may be nil.
func NewServer(db Pinger, rdb redis.Cmdable, policy PolicyChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{db: db, redis: rdb, policy: policy, grpc: health.NewServer(), logger: logger}
}

// GRPC returns the grpc.health.v1 implementation to register on a grpc.Server.
func (s *Server) GRPC() *health.Server { return s.grpc }

// Check runs every configured check and returns the failures by dependency name.
func (s *Server) Check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	failed := map[string]string{}
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			failed["postgres"] = err.Error()
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			failed["redis"] = err.Error()
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			failed["policy"] = err.Error()
		}
	}
	return failed
}

// Refresh runs the checks once and updates the overall grpc serving status.
func (s *Server) Refresh(ctx context.Context) bool {
	failed := s.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("readiness check failed", zap.Any("failures", failed))
	}
	s.grpc.SetServingStatus("", status)
	return len(failed) == 0
}

// Run refreshes the grpc status every interval until ctx is done, then marks it not serving.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.grpc.Shutdown()
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Register mounts GET /healthz.
func (s *Server) Register(r fiber.Router) {
	r.Get("/healthz", s.HealthCheck)
}

// HealthCheck answers 200 when every dependency responds, else 503 with the failures.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	failed := s.Check(c.UserContext())
	if len(failed) > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "failures": failed})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
