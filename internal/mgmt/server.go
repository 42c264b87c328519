// Package mgmt exposes the operational endpoints of the sweeper:
// liveness and Prometheus metrics. There is no task API — the agent is
// driven entirely by configuration and runs to completion.
package mgmt

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/history-sweeper/internal/metrics"
)

// Server is the management Fiber application.
type Server struct {
	app    *fiber.App
	addr   string
	logger zerolog.Logger
}

// NewServer creates the management server.
func NewServer(addr string, met *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(met.Handler()))

	return &Server{
		app:    app,
		addr:   addr,
		logger: logger.With().Str("component", "mgmt_server").Logger(),
	}
}

// App exposes the Fiber app for testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("management server starting")
	return s.app.Listen(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
