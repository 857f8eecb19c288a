// Package mcpserver exposes the session ledger as read-only MCP tools.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/PolybrainAI/polybrain-core/internal/store"
	"github.com/PolybrainAI/polybrain-core/internal/version"
)

const instructions = `Polybrain records every modeling session it runs.
Use list_sessions to find recent sessions, session_detail for the stages a
session went through, and session_attempts for the scripts it executed
together with their output or error.`

// New builds the MCP server over ledger.
func New(ledger store.Ledger) *server.MCPServer {
	s := server.NewMCPServer(
		"polybrain",
		version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	list := &ListSessionsTool{ledger: ledger}
	s.AddTool(list.Definition(), list.Handle)

	detail := &SessionDetailTool{ledger: ledger}
	s.AddTool(detail.Definition(), detail.Handle)

	attempts := &SessionAttemptsTool{ledger: ledger}
	s.AddTool(attempts.Definition(), attempts.Handle)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(ledger store.Ledger) error {
	return server.ServeStdio(New(ledger))
}
