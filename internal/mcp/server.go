// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes gdb debugging sessions through MCP tools that can be
// used by AI assistants and other MCP clients. Each session is a bridge
// session, the same one the DAP server drives.
//
// Session Management (always available):
//   - gdb_launch: Start gdb, load a program, set breakpoints and run it
//   - gdb_disconnect: End a session
//   - gdb_list_sessions: List active sessions
//   - gdb_list_configurations: List the launch.json configurations gdb_launch can use
//
// Inspection (always available):
//   - gdb_threads, gdb_stack, gdb_scopes, gdb_variables
//   - gdb_evaluate: Evaluate expressions in a frame
//   - gdb_wait_stopped: Wait for the program to stop and collect its output
//
// Control (full mode only):
//   - gdb_breakpoints: Replace the breakpoints of a source file
//   - gdb_continue, gdb_step, gdb_pause: Execution control
//   - gdb_set_variable: Modify variable values
package mcp

import (
	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/config"
	"github.com/ctagard/gdbmi-dap/internal/version"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *SessionManager
	config         config.MCPConfig
	log            logr.Logger
}

// NewServer creates an MCP server whose sessions run gdb as described by
// bridgeCfg.
func NewServer(cfg config.MCPConfig, bridgeCfg bridge.Config) *Server {
	if bridgeCfg.Logger.GetSink() == nil {
		bridgeCfg.Logger = logr.Discard()
	}

	mcpServer := server.NewMCPServer(
		"gdbmi-dap",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: NewSessionManager(bridgeCfg, cfg.MaxSessions, cfg.SessionTimeout),
		config:         cfg,
		log:            bridgeCfg.Logger.WithName("mcp"),
	}

	s.registerTools()

	return s
}

// ServeStdio serves MCP over stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the session manager
func (s *Server) Sessions() *SessionManager {
	return s.sessionManager
}

// Close shuts down the server and every session
func (s *Server) Close() {
	s.sessionManager.Close()
}
