package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PolybrainAI/polybrain-core/internal/llm"
)

func TestChat(t *testing.T) {
	t.Parallel()

	var path string
	var sent chatRequest
	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			path = r.URL.Path
			body, err := io.ReadAll(r.Body)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(body, &sent); err != nil {
				return nil, err
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(
					`{"message":{"role":"assistant","content":"pong"},"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`,
				)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:    "llama3",
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "ping"}},
		Stop:     []string{"\n"},
	})
	require.NoError(t, err)
	require.Equal(t, "/api/chat", path)
	require.Equal(t, "pong", resp.Message.Content)
	require.Equal(t, 6, resp.Usage.TotalTokens)

	require.False(t, sent.Stream)
	require.Equal(t, []any{"\n"}, sent.Options["stop"])
	require.NotContains(t, sent.Options, "num_predict")
}

func TestChatStatusError(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("model not found\n")),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "missing"})
	require.EqualError(t, err, "ollama: status 404: model not found")
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
