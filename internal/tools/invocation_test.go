package tools

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInvocationBlockYAML(t *testing.T) {
	reply := "# I should confirm the height first\n```yaml\ncommand: User Query\ninput:\n  question: \"How tall is the cube?\"\n```\nLet me know."

	inv, err := ParseInvocation(reply)
	require.NoError(t, err)
	require.Equal(t, "User Query", inv.Command)
	require.Equal(t, "# I should confirm the height first", inv.Thought)
	q, ok := inv.Field("question")
	require.True(t, ok)
	require.Equal(t, "How tall is the cube?", q)
}

func TestParseInvocationFlowYAML(t *testing.T) {
	inv, err := ParseInvocation(`command: AskUser, input: {question: "What height?"}`)
	require.NoError(t, err)
	require.Equal(t, "AskUser", inv.Command)
	q, _ := inv.Field("question")
	require.Equal(t, "What height?", q)
}

func TestFieldUnwrapsOnlyOneEnclosingPair(t *testing.T) {
	inv := Invocation{Input: map[string]any{
		"wrapped":  `"Whole question?"`,
		"trailing": `Engrave the text "PB"`,
		"pair":     `"A" or "B"`,
		"plain":    "no quotes",
	}}
	cases := map[string]string{
		"wrapped":  "Whole question?",
		"trailing": `Engrave the text "PB"`,
		"pair":     `"A" or "B"`,
		"plain":    "no quotes",
	}
	for field, want := range cases {
		got, ok := inv.Field(field)
		require.True(t, ok)
		require.Equal(t, want, got, field)
	}
}

func TestParseInvocationReportWithLiteralBlock(t *testing.T) {
	reply := strings.Join([]string{
		"command: Report",
		"input:",
		"  content: |",
		"    1. Sketch a 2in square on the top plane.",
		"    2. Extrude it 2in.",
		"output: none: null",
	}, "\n")

	inv, err := ParseInvocation(reply)
	require.NoError(t, err)
	content, ok := inv.Field("content")
	require.True(t, ok)
	require.Contains(t, content, "Extrude it 2in.")
}

func TestParseInvocationWithoutCommand(t *testing.T) {
	_, err := ParseInvocation("# just thinking about the fillet radius")
	require.ErrorIs(t, err, ErrNoInvocation)
}

func TestParseInvocationMalformed(t *testing.T) {
	cases := map[string]string{
		"broken mapping": "command: Report\ninput:\n  content: a: b: c\n   - bad",
		"scalar input":   "command: User Query\ninput: what height?",
		"empty command":  "command:\ninput:\n  question: hi",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInvocation(reply)
			var malformed *MalformedError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			require.Equal(t, reply, malformed.Raw)
		})
	}
}

func TestRenderIncludesAnswer(t *testing.T) {
	inv, err := ParseInvocation(`command: AskUser, input: {question: "What height?"}`)
	require.NoError(t, err)

	out, err := inv.WithOutput("12 inches").Render()
	require.NoError(t, err)
	require.Contains(t, out, "command: AskUser")
	require.Contains(t, out, "question: What height?")
	require.Contains(t, out, "output: 12 inches")

	again, err := ParseInvocation(out)
	require.NoError(t, err)
	require.Equal(t, "12 inches", again.Output)
}

func TestResolveChecksRegistryAndSchema(t *testing.T) {
	reg := PlannerTools()

	tool, err := Resolve(reg, Invocation{Command: "ask_user", Input: map[string]any{"question": "Why?"}})
	require.NoError(t, err)
	require.Equal(t, KindHumanQuery, tool.Kind)

	tool, err = Resolve(reg, Invocation{Command: "submit final report", Input: map[string]any{"content": "done"}})
	require.NoError(t, err)
	require.Equal(t, KindReport, tool.Kind)

	var malformed *MalformedError
	_, err = Resolve(reg, Invocation{Command: "Delete Everything"})
	require.ErrorAs(t, err, &malformed)

	_, err = Resolve(reg, Invocation{Command: "User Query", Input: map[string]any{}})
	require.ErrorAs(t, err, &malformed)
	require.Contains(t, err.Error(), "input.question is required")
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(AskUser(), Tool{Schema: Schema{Name: "ask-user"}, Kind: KindHumanQuery})
	require.Error(t, err)
}

func TestDescribeListsTools(t *testing.T) {
	text, err := PlannerTools().Describe()
	require.NoError(t, err)
	require.Contains(t, text, "command: User Query")
	require.Contains(t, text, "command: Report")
	require.Contains(t, text, "question: The question to ask the user")
}
