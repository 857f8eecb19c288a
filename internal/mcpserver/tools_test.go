package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/store"
)

func seededLedger(t *testing.T) *store.SQLite {
	t.Helper()
	ctx := context.Background()
	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	require.NoError(t, ledger.StartSession(ctx, store.SessionRecord{ID: "s1", DocumentID: "doc", Transport: "line", StartedAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, ledger.SetRequest(ctx, "s1", "a cube"))
	require.NoError(t, ledger.RecordStage(ctx, "s1", store.StageEvent{Stage: "clarifier", Outcome: "ok", RecordedAt: time.Now()}))
	require.NoError(t, ledger.RecordAttempt(ctx, "s1", codegen.Attempt{Index: 1, Source: "bad(", Stderr: "SyntaxError", ExitCode: 1}))
	require.NoError(t, ledger.RecordAttempt(ctx, "s1", codegen.Attempt{Index: 2, Source: "ok()", Stdout: "done", OK: true}))
	require.NoError(t, ledger.FinishSession(ctx, "s1", store.StatusCompleted, ""))
	return ledger
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("result has no text content")
	return ""
}

func TestToolDefinitions(t *testing.T) {
	attempts := (&SessionAttemptsTool{}).Definition()
	require.Equal(t, "session_attempts", attempts.Name)
	require.Contains(t, attempts.InputSchema.Required, "session_id")
	require.Contains(t, attempts.InputSchema.Properties, "failed_only")

	require.Equal(t, "list_sessions", (&ListSessionsTool{}).Definition().Name)
	require.Equal(t, "session_detail", (&SessionDetailTool{}).Definition().Name)
}

func TestListSessions(t *testing.T) {
	tool := &ListSessionsTool{ledger: seededLedger(t)}
	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"limit": float64(5)}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var sessions []store.SessionSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, "s1", sessions[0].ID)
	require.Equal(t, store.StatusCompleted, sessions[0].Status)
	require.Equal(t, 2, sessions[0].Attempts)
}

func TestListSessionsEmpty(t *testing.T) {
	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	res, err := (&ListSessionsTool{ledger: ledger}).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	require.Equal(t, "No sessions recorded yet.", resultText(t, res))
}

func TestSessionDetail(t *testing.T) {
	tool := &SessionDetailTool{ledger: seededLedger(t)}
	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	text := resultText(t, res)
	require.Contains(t, text, `"request": "a cube"`)
	require.Contains(t, text, `"stage": "clarifier"`)

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"session_id": "missing"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(t, res), "not found")
}

func TestSessionAttempts(t *testing.T) {
	tool := &SessionAttemptsTool{ledger: seededLedger(t)}

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	var attempts []store.AttemptRecord
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &attempts))
	require.Len(t, attempts, 2)

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"session_id": "s1", "failed_only": true}))
	require.NoError(t, err)
	attempts = nil
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &attempts))
	require.Len(t, attempts, 1)
	require.Equal(t, "SyntaxError", attempts[0].Stderr)

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestNewRegistersTools(t *testing.T) {
	require.NotNil(t, New(store.Nop{}))
}
