// Package codegen turns model replies into scripts, runs them in the
// sandbox and drives the repair loop when they fail.
package codegen

import (
	"errors"
	"strings"
)

// ErrNoCode is returned when a reply has no fenced code block.
var ErrNoCode = errors.New("codegen: no code block in reply")

const fence = "```"

// Extract returns the code inside the fenced blocks of a model reply. Blocks
// are joined in order. A reply cut off before its closing fence is treated
// as if the fence were there.
func Extract(reply string) (string, error) {
	text := strings.ReplaceAll(reply, "```python", fence)
	text = strings.ReplaceAll(text, "```py", fence)
	if strings.Count(text, fence)%2 == 1 {
		text += "\n" + fence
	}

	segments := strings.Split(text, fence)
	var blocks []string
	for i := 1; i < len(segments); i += 2 {
		block := strings.TrimSpace(dropLanguageTag(segments[i]))
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return "", ErrNoCode
	}
	return strings.Join(blocks, "\n\n"), nil
}

// dropLanguageTag removes an info string such as "python3" that sits on the
// fence line itself.
func dropLanguageTag(segment string) string {
	nl := strings.IndexByte(segment, '\n')
	if nl < 0 {
		return segment
	}
	tag := strings.TrimSpace(segment[:nl])
	if tag == "" {
		return segment[nl+1:]
	}
	for _, ch := range tag {
		isWord := ch == '_' || ch == '-' || ch == '+' ||
			(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
		if !isWord {
			return segment
		}
	}
	return segment[nl+1:]
}
