package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/PolybrainAI/polybrain-core/internal/llm"
)

// ErrScriptExhausted is returned when a scripted provider runs out of replies.
var ErrScriptExhausted = errors.New("mock: no scripted replies left")

// Provider is a test double implementing llm.Provider.
//
// ChatFn takes precedence. Otherwise Replies are returned in order, and a
// plain "mock" reply is used when neither is set.
type Provider struct {
	NameValue string
	ChatFn    func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	Replies   []string

	mu       sync.Mutex
	next     int
	requests []llm.ChatRequest
}

// Scripted returns a provider that answers with replies in order.
func Scripted(replies ...string) *Provider {
	return &Provider{Replies: replies}
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	content := "mock"
	if p.Replies != nil {
		p.mu.Lock()
		if p.next >= len(p.Replies) {
			p.mu.Unlock()
			return llm.ChatResponse{}, ErrScriptExhausted
		}
		content = p.Replies[p.next]
		p.next++
		p.mu.Unlock()
	}

	return llm.ChatResponse{
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

// Prompts returns the content of the last message of each request.
func (p *Provider) Prompts() []string {
	reqs := p.Requests()
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if len(r.Messages) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, r.Messages[len(r.Messages)-1].Content)
	}
	return out
}
