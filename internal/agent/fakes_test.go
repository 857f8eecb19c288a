package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/llm"
	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/session"
	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

// scriptedLLM answers each template from its own queue of replies.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   []llm.Call
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{replies: map[string][]string{}}
}

func (s *scriptedLLM) on(template string, replies ...string) *scriptedLLM {
	s.replies[template] = append(s.replies[template], replies...)
	return s
}

func (s *scriptedLLM) Complete(_ context.Context, call llm.Call) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	queue := s.replies[call.Template]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", call.Template)
	}
	s.replies[call.Template] = queue[1:]
	return queue[0], nil
}

func (s *scriptedLLM) callsFor(template string) []llm.Call {
	var out []llm.Call
	for _, c := range s.calls {
		if c.Template == template {
			out = append(out, c)
		}
	}
	return out
}

type fakeHuman struct {
	answers   []string
	questions []string
	messages  []bridge.StatusMessage
}

func (h *fakeHuman) AskHuman(question string) (string, error) {
	h.questions = append(h.questions, question)
	if len(h.answers) == 0 {
		return "", fmt.Errorf("%w: no more answers", bridge.ErrTransport)
	}
	a := h.answers[0]
	h.answers = h.answers[1:]
	return a, nil
}

func (h *fakeHuman) EmitStatus(msg bridge.StatusMessage) error {
	h.messages = append(h.messages, msg)
	return nil
}

func testEnv(model Completer, human Human) (Env, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return Env{
		LLM:   model,
		Human: human,
		Session: session.New("sess-1", "doc-1", session.Credentials{
			ModelAPIKey: "sk-session", CADAccessKey: "ak", CADSecretKey: "sec",
		}),
		Metrics: metrics,
	}, metrics
}

func plannerLoop(env Env, max int) (*ToolLoop, *Base) {
	base := NewBase(env, StagePlanner)
	return &ToolLoop{
		Base:          &base,
		Tools:         tools.PlannerTools(),
		Template:      "planner",
		MaxIterations: max,
		Params: func(scratchpad string) map[string]any {
			return map[string]any{"Scratchpad": scratchpad}
		},
	}, &base
}
