// Package mcp exposes the action registry and runner as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/browseract/internal/actions"
	"github.com/rendis/browseract/internal/engine"
	"github.com/rendis/browseract/internal/validation"
)

// Tool names.
const (
	ToolActions  = "browser.actions"
	ToolValidate = "browser.validate"
	ToolRun      = "browser.run"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Registry  *actions.Registry
	Validator validation.Validator
	// Runner executes browser.run. Nil leaves the tool registered but failing.
	Runner  *engine.Runner
	Version string
	Logger  *slog.Logger
}

// Server wraps an MCP server with browseract tool handlers.
type Server struct {
	registry  *actions.Registry
	validator validation.Validator
	runner    *engine.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with its three tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		registry:  deps.Registry,
		validator: deps.Validator,
		runner:    deps.Runner,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"browseract",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("browseract drives a browser through named actions. Use browser.actions to list actions and their parameter schemas, browser.validate to check a request list without running it, and browser.run to execute it in a fresh browser session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: runTool(), Handler: s.handleRun},
	}
}

// --- Tool definitions ---

func actionsTool() mcp.Tool {
	return mcp.NewTool(ToolActions,
		mcp.WithDescription("List registered browser actions with their parameter schemas"),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool(ToolValidate,
		mcp.WithDescription("Check action requests against the registry without running them"),
		mcp.WithArray("requests", mcp.Required(),
			mcp.Description(`Action requests, each {"name": string, "args": object}`),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool(ToolRun,
		mcp.WithDescription("Run action requests in order in a fresh browser session"),
		mcp.WithArray("requests", mcp.Required(),
			mcp.Description(`Action requests, each {"name": string, "args": object}`),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}
