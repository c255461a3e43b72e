// Package mcp exposes a subset of the supervisor's fleet-management
// operations as MCP tools over a Unix socket, so an IDE assistant can
// inspect and control the worker fleet the same way the ControlBot does.
// Inverted from an outward-facing MCP *client* hub (connecting to
// third-party MCP servers) into an MCP *server*, built on the same
// github.com/mark3labs/mcp-go module used on the client side.
package mcp

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ptyrelay/ptyrelay/internal/supervisor"
)

// Server wraps an MCP server bound to a Unix socket, exposing supervisor
// operations as tools.
type Server struct {
	sup        *supervisor.Supervisor
	socketPath string
	mcpServer  *server.MCPServer
}

// NewServer constructs a Server. Nothing is listening until Serve is called.
func NewServer(sup *supervisor.Supervisor, socketPath string) *Server {
	s := &Server{sup: sup, socketPath: socketPath}
	s.mcpServer = server.NewMCPServer("ptyrelay-supervisor", "1.0.0")
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("status", mcp.WithDescription("List every bot's status, pid, and masked token")),
		s.handleStatus,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("start",
			mcp.WithDescription("Start a stopped bot"),
			mcp.WithString("botId", mcp.Required(), mcp.Description("bot identifier, e.g. bot-0")),
		),
		s.handleStart,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("stop",
			mcp.WithDescription("Stop a running bot"),
			mcp.WithString("botId", mcp.Required(), mcp.Description("bot identifier, e.g. bot-0")),
		),
		s.handleStop,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("restart",
			mcp.WithDescription("Restart a bot"),
			mcp.WithString("botId", mcp.Required(), mcp.Description("bot identifier, e.g. bot-0")),
		),
		s.handleRestart,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("health",
			mcp.WithDescription("Health-check a running bot"),
			mcp.WithString("botId", mcp.Required(), mcp.Description("bot identifier, e.g. bot-0")),
		),
		s.handleHealth,
	)
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var out string
	for _, wp := range s.sup.List() {
		snap := wp.Snapshot()
		out += fmt.Sprintf("%s [%s] pid=%d token=%s\n", snap.BotID, snap.Status, snap.PID, snap.MaskedToken)
	}
	if out == "" {
		out = "no bots configured"
	}
	return mcp.NewToolResultText(out), nil
}

// getArgs extracts the request's arguments as a map[string]any; mcp-go types
// Params.Arguments as any, not map[string]any, so every caller must type-
// assert before indexing.
func getArgs(req mcp.CallToolRequest) map[string]any {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func (s *Server) botIDArg(req mcp.CallToolRequest) (string, error) {
	botID, ok := getArgs(req)["botId"].(string)
	if !ok || botID == "" {
		return "", fmt.Errorf("botId is required")
	}
	return botID, nil
}

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	botID, err := s.botIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sup.StartBot(ctx, botID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s started", botID)), nil
}

func (s *Server) handleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	botID, err := s.botIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sup.StopBot(ctx, botID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s stopped", botID)), nil
}

func (s *Server) handleRestart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	botID, err := s.botIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sup.RestartBot(ctx, botID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s restarted", botID)), nil
}

func (s *Server) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	botID, err := s.botIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	healthy := s.sup.HealthCheck(ctx, botID)
	return mcp.NewToolResultText(fmt.Sprintf("%s healthy=%v", botID, healthy)), nil
}

// Serve listens on the Unix socket and runs one MCP stdio-shaped session per
// connection until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("mcp: listening on %s: %w", s.socketPath, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	stdio := server.NewStdioServer(s.mcpServer)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mcp: accept: %w", err)
		}
		go func() {
			defer conn.Close()
			if err := stdio.Listen(ctx, conn, conn); err != nil {
				log.Printf("[mcp] session ended: %v", err)
			}
		}()
	}
}
