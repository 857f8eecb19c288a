package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PolybrainAI/polybrain-core/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// ListSessionsTool handles list_sessions.
type ListSessionsTool struct {
	ledger store.Ledger
}

// Definition returns the MCP tool definition for list_sessions.
func (t *ListSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_sessions",
		mcp.WithDescription("List the most recent modeling sessions, newest first, with their status and request."),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions (default: 20, max: 200)"),
		),
	)
}

// Handle processes the list_sessions tool call.
func (t *ListSessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	sessions, err := t.ledger.ListSessions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No sessions recorded yet."), nil
	}
	return jsonResult(sessions)
}

// SessionDetailTool handles session_detail.
type SessionDetailTool struct {
	ledger store.Ledger
}

// Definition returns the MCP tool definition for session_detail.
func (t *SessionDetailTool) Definition() mcp.Tool {
	return mcp.NewTool("session_detail",
		mcp.WithDescription("Show one session with the outcome and duration of each pipeline stage."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id as returned by list_sessions"),
		),
	)
}

// Handle processes the session_detail tool call.
func (t *SessionDetailTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	summary, err := t.ledger.Session(ctx, id)
	if err != nil {
		return lookupError(id, err), nil
	}
	stages, err := t.ledger.Stages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stages: %v", err)), nil
	}
	return jsonResult(struct {
		Session store.SessionSummary `json:"session"`
		Stages  []store.StageEvent   `json:"stages"`
	}{summary, stages})
}

// SessionAttemptsTool handles session_attempts.
type SessionAttemptsTool struct {
	ledger store.Ledger
}

// Definition returns the MCP tool definition for session_attempts.
func (t *SessionAttemptsTool) Definition() mcp.Tool {
	return mcp.NewTool("session_attempts",
		mcp.WithDescription("List every script a session executed, in order, with its output or error."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id as returned by list_sessions"),
		),
		mcp.WithBoolean("failed_only",
			mcp.Description("Only return attempts that failed"),
		),
	)
}

// Handle processes the session_attempts tool call.
func (t *SessionAttemptsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if _, err := t.ledger.Session(ctx, id); err != nil {
		return lookupError(id, err), nil
	}
	attempts, err := t.ledger.Attempts(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read attempts: %v", err)), nil
	}
	if boolArg(req, "failed_only", false) {
		failed := attempts[:0]
		for _, a := range attempts {
			if !a.OK {
				failed = append(failed, a)
			}
		}
		attempts = failed
	}
	if len(attempts) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Session %q has no matching attempts.", id)), nil
	}
	return jsonResult(attempts)
}

func lookupError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to read session %q: %v", id, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}
