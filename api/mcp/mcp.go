// Package mcp exposes the memory pipeline as MCP (Model Context Protocol)
// tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/utils"
)

// Pipeline is the part of *pipeline.Pipeline the tools call.
type Pipeline interface {
	Preview(ctx context.Context, text string) ([]string, error)
	Remember(ctx context.Context, raw string, owner memory.Owner) (memory.Result, error)
}

type Config struct {
	// Pipeline backs both tools
	Pipeline Pipeline

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "automem",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Pipeline == nil {
			return nil, errors.New("pipeline is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryExtractToolName,
			Description: memoryExtractDescription,
		}, s.handleMemoryExtract)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryRememberToolName,
			Description: memoryRememberDescription,
		}, s.handleMemoryRemember)
	}

	s.mcpServer = mcpServer

	// Stateless: every request gets the same server.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
