// ABOUTME: MCP server for ttcache, exposing the offline cache to AI agents over stdio
// ABOUTME: Registers tools, resources and prompts backed by the sync coordinator

package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	ttsync "github.com/harper/ttcache/internal/sync"
)

const instructions = `ttcache is an offline copy of a Tiny Tiny RSS account.
Reads always come from the local cache and work without a network.
Flag changes and notes are recorded locally and delivered to the server
by the background sync; use sync_now to push and pull immediately and
status to see what is still pending.`

// Server answers MCP requests from the local cache.
type Server struct {
	mcpServer *server.MCPServer
	coord     *ttsync.Coordinator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for transport errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds a server around coord. version is reported to clients.
func NewServer(coord *ttsync.Coordinator, version string, opts ...Option) *Server {
	s := &Server{
		coord:  coord,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = server.NewMCPServer("ttcache", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// Serve speaks JSON-RPC on in/out until ctx is done or in is closed.
// Cancellation is a clean shutdown.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
