package agent

import (
	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/codegen"
)

// Error taxonomy shared by the stages. Malformed model output and failed
// scripts never appear here; they are recovered inside the loops.
var (
	// ErrTransport ends the session; it is never retried.
	ErrTransport = bridge.ErrTransport
	// ErrContractViolation is a programming error in the bridge.
	ErrContractViolation = bridge.ErrContractViolation
	// ErrBudgetExhausted is returned when a repair budget runs out.
	ErrBudgetExhausted = codegen.ErrRepairBudgetExhausted
)
