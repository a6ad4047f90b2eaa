package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/routes"
	"github.com/solstash/solstash/internal/scheduler"
)

// Server wraps the Fiber application, shared dependencies and the payout
// scheduler lifecycle.
type Server struct {
	app   *fiber.App
	cfg   config.Config
	db    *pgxpool.Pool
	cache *redis.Client
	sched *scheduler.Scheduler
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	sched, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache, sched: sched}, nil
}

// Listen starts the payout scheduler, when enabled, and the HTTP server.
func (s *Server) Listen() error {
	if s.sched != nil {
		if err := s.sched.Start(); err != nil {
			return err
		}
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the scheduler and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sched != nil {
		s.sched.Stop()
	}
	return s.app.ShutdownWithContext(ctx)
}
