package agent

import (
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

const assistantPrefix = "Assistant:"

// CleanDeliverable strips fence delimiters and the empty-output marker,
// then a single leading block-scalar or block-quote marker.
func CleanDeliverable(s string) string {
	s = stripDecorations(s)
	for _, marker := range []string{"|-", "|+", "|", ">"} {
		if rest, ok := strings.CutPrefix(s, marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}

// stripDecorations removes fences and empty-output markers until none are
// left, so running it on its own output changes nothing.
func stripDecorations(s string) string {
	for {
		next := strings.TrimSpace(tools.StripFences(strings.ReplaceAll(s, tools.EmptyOutputMarker, "")))
		if next == s {
			return s
		}
		s = next
	}
}

// TrimAssistantPrefix drops a leading "Assistant:" that conversational
// prompts tend to echo.
func TrimAssistantPrefix(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, assistantPrefix); ok {
		return strings.TrimSpace(rest)
	}
	return s
}
