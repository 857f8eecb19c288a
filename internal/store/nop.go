package store

import (
	"context"

	"github.com/PolybrainAI/polybrain-core/internal/codegen"
)

// Nop discards writes and reads back nothing. It is used when the ledger
// is disabled.
type Nop struct{}

var _ Ledger = Nop{}

func (Nop) StartSession(context.Context, SessionRecord) error            { return nil }
func (Nop) SetRequest(context.Context, string, string) error             { return nil }
func (Nop) FinishSession(context.Context, string, string, string) error  { return nil }
func (Nop) RecordStage(context.Context, string, StageEvent) error        { return nil }
func (Nop) RecordAttempt(context.Context, string, codegen.Attempt) error { return nil }
func (Nop) ListSessions(context.Context, int) ([]SessionSummary, error)  { return nil, nil }
func (Nop) Session(context.Context, string) (SessionSummary, error)      { return SessionSummary{}, ErrNotFound }
func (Nop) Stages(context.Context, string) ([]StageEvent, error)         { return nil, nil }
func (Nop) Attempts(context.Context, string) ([]AttemptRecord, error)    { return nil, nil }
func (Nop) Close() error                                                 { return nil }

