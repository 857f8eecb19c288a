package tools

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoInvocation means the reply contains no command at all. The loop
// treats such a reply as a thought.
var ErrNoInvocation = errors.New("no tool invocation")

// MalformedError is returned when a reply names a command but the block
// around it does not parse.
type MalformedError struct {
	Raw string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed tool invocation: %v", e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Invocation is one structured command found in a model reply.
type Invocation struct {
	// Thought is the prose that preceded the command block.
	Thought string
	Command string
	Input   map[string]any
	Output  string
}

type invocationBlock struct {
	Command string         `yaml:"command"`
	Input   map[string]any `yaml:"input"`
	Output  any            `yaml:"output"`
}

type renderedBlock struct {
	Command string         `yaml:"command"`
	Input   map[string]any `yaml:"input"`
	Output  string         `yaml:"output"`
}

var fenceMarkers = []string{"```yaml", "```yml", "```"}

// EmptyOutputMarker is how a tool without output has been echoed back in
// earlier transcripts. It is not valid YAML and is dropped before parsing.
const EmptyOutputMarker = "output: none: null"

// StripFences removes markdown code-fence delimiters, keeping their content.
func StripFences(s string) string {
	for _, f := range fenceMarkers {
		s = strings.ReplaceAll(s, f, "")
	}
	return s
}

// ParseInvocation finds the first command block in a model reply. Prose
// before the block is kept as the invocation's thought; prose after the
// block is ignored. Both block and flow YAML are accepted, so
// `command: AskUser, input: {question: "What height?"}` parses too.
func ParseInvocation(reply string) (Invocation, error) {
	lines := strings.Split(StripFences(reply), "\n")

	start := -1
	for i, line := range lines {
		if isKeyLine(line, "command") {
			start = i
			break
		}
	}
	if start < 0 {
		return Invocation{}, ErrNoInvocation
	}

	body := blockLines(lines[start:])
	block, err := decodeBlock(body)
	if err != nil {
		return Invocation{}, &MalformedError{Raw: reply, Err: err}
	}

	command := strings.TrimSpace(block.Command)
	if command == "" {
		return Invocation{}, &MalformedError{Raw: reply, Err: errors.New("command is empty")}
	}

	return Invocation{
		Thought: strings.TrimSpace(strings.Join(lines[:start], "\n")),
		Command: command,
		Input:   block.Input,
		Output:  scalarString(block.Output),
	}, nil
}

func decodeBlock(body []string) (invocationBlock, error) {
	var block invocationBlock
	err := yaml.Unmarshal([]byte(strings.Join(body, "\n")), &block)
	if err == nil {
		return block, nil
	}

	parts := make([]string, 0, len(body))
	for _, l := range body {
		if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "#") {
			parts = append(parts, t)
		}
	}
	flow := "{" + strings.TrimSuffix(strings.Join(parts, " "), ",") + "}"
	var flowBlock invocationBlock
	if flowErr := yaml.Unmarshal([]byte(flow), &flowBlock); flowErr == nil {
		return flowBlock, nil
	}
	return invocationBlock{}, err
}

// blockLines returns the command block: the command line, the indented
// and comment lines below it and the input/output keys, stopping at the
// first other top-level line.
func blockLines(lines []string) []string {
	indent := leadingSpace(lines[0])
	out := []string{strings.TrimPrefix(lines[0], indent)}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == EmptyOutputMarker:
			continue
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
		case len(leadingSpace(line)) > len(indent):
		case isKeyLine(line, "input"), isKeyLine(line, "output"):
		default:
			return out
		}
		out = append(out, strings.TrimPrefix(line, indent))
	}
	return out
}

func isKeyLine(line, key string) bool {
	t := strings.TrimLeft(line, " \t")
	t = strings.TrimPrefix(t, "- ")
	return strings.HasPrefix(t, key+":")
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := yaml.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(string(data))
	}
}

// Field returns a string input value. A value wrapped in exactly one pair
// of double quotes is unwrapped; quotes inside the text are kept.
func (inv Invocation) Field(name string) (string, bool) {
	v, ok := inv.Input[name]
	if !ok {
		return "", false
	}
	return unquote(strings.TrimSpace(scalarString(v))), true
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	inner := s[1 : len(s)-1]
	if strings.Contains(inner, "\"") {
		return s
	}
	return inner
}

// WithOutput returns a copy of the invocation with the output filled in.
func (inv Invocation) WithOutput(output string) Invocation {
	inv.Output = output
	return inv
}

// Render serializes the invocation back into the grammar the model writes,
// preceded by its thought.
func (inv Invocation) Render() (string, error) {
	data, err := yaml.Marshal(renderedBlock{Command: inv.Command, Input: inv.Input, Output: inv.Output})
	if err != nil {
		return "", fmt.Errorf("render invocation: %w", err)
	}
	if inv.Thought == "" {
		return string(data), nil
	}
	return inv.Thought + "\n" + string(data), nil
}
