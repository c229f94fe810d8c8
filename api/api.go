package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/automem/pkg/pipeline"
)

// Pipeline is the part of *pipeline.Pipeline the server calls.
type Pipeline interface {
	Inlet(ev *pipeline.Event) *pipeline.Event
	Outlet(ctx context.Context, in pipeline.Inlet) *pipeline.Event
	Preview(ctx context.Context, text string) ([]string, error)
}

// Server is the HTTP intake for filter calls.
type Server struct {
	config   Config
	pipeline Pipeline
	logger   *slog.Logger
	app      *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, p Pipeline, logger *slog.Logger) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		pipeline: p,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/inlet", s.handleInlet)
	app.Post("/v1/outlet", s.handleOutlet)
	app.Post("/v1/extract", s.handleExtract)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
