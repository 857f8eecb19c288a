package pipeline

import (
	"errors"

	"github.com/PolybrainAI/polybrain-core/internal/agent"
	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/store"
)

// Classify maps a session error to its outcome: the ledger status and the
// sessions metric label.
func Classify(err error) string {
	var authErr *AuthError
	switch {
	case err == nil:
		return store.StatusCompleted
	case errors.As(err, &authErr):
		return store.StatusAuthError
	case errors.Is(err, agent.ErrBudgetExhausted):
		return store.StatusBudgetExhausted
	case errors.Is(err, agent.ErrContractViolation):
		return store.StatusInternalError
	case errors.Is(err, agent.ErrTransport):
		return store.StatusTransportError
	default:
		return store.StatusInternalError
	}
}

// detail is the diagnostic kept in the ledger for a failed session.
func detail(err error) string {
	if err == nil {
		return ""
	}
	var exhausted *codegen.RepairExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Last.Stderr
	}
	return err.Error()
}
