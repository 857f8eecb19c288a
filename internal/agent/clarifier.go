package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
)

// BeginMarker ends the clarifying dialogue.
const BeginMarker = "Begin!"

// Clarifier questions the user until the request is complete, then
// condenses the dialogue into one normalized request.
type Clarifier struct {
	Base
	MaxTurns int
}

// NewClarifier builds the clarifying stage.
func NewClarifier(env Env, maxTurns int) *Clarifier {
	return &Clarifier{Base: NewBase(env, StageClarifier), MaxTurns: maxTurns}
}

// Invoke runs the dialogue starting from the user's initial request.
func (c *Clarifier) Invoke(ctx context.Context, initial string) (string, error) {
	transcript := []string{"User: " + strings.TrimSpace(initial)}

	ended := false
	for turn := 0; turn < c.MaxTurns; turn++ {
		reply, err := c.CallLLM(ctx, prompts.Clarifier, map[string]any{
			"Transcript": strings.Join(transcript, "\n"),
		})
		if err != nil {
			return "", err
		}
		reply = TrimAssistantPrefix(reply)

		if strings.Contains(reply, BeginMarker) {
			if info := strings.TrimSpace(strings.ReplaceAll(reply, BeginMarker, "")); info != "" {
				if err := c.SendMessage(bridge.InfoMessage(info)); err != nil {
					return "", err
				}
			}
			ended = true
			break
		}

		answer, err := c.QueryHuman(reply)
		if err != nil {
			return "", err
		}
		transcript = append(transcript,
			"Assistant: "+strings.ReplaceAll(reply, "\n", " "),
			"User: "+strings.TrimSpace(answer),
		)
	}
	if !ended {
		c.metrics().RecordCeilingHit(string(c.Stage()))
		c.Logger().Warn("clarifying dialogue hit its turn limit", zap.Int("turns", c.MaxTurns))
	}

	summary, err := c.CallLLM(ctx, prompts.ClarifierSummary, map[string]any{
		"Transcript": strings.Join(transcript, "\n"),
	})
	if err != nil {
		return "", err
	}
	if summary = TrimAssistantPrefix(summary); summary == "" {
		return strings.TrimSpace(initial), nil
	}
	return summary, nil
}
