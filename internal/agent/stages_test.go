package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/codegen"
	"github.com/PolybrainAI/polybrain-core/internal/prompts"
	"github.com/PolybrainAI/polybrain-core/internal/tools"
)

func TestClarifierAsksUntilBegin(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Clarifier,
			"Assistant: How tall should the cylinder be?\nPlease answer in inches.",
			"A 12 inch tall cylinder with a 2 inch radius.\nBegin!",
		).
		on(prompts.ClarifierSummary, "Assistant: A cylinder 12 inches tall with a 2 inch radius.")
	human := &fakeHuman{answers: []string{"12 inches"}}
	env, _ := testEnv(model, human)

	request, err := NewClarifier(env, 10).Invoke(context.Background(), "make a cylinder")
	require.NoError(t, err)
	require.Equal(t, "A cylinder 12 inches tall with a 2 inch radius.", request)

	require.Equal(t, []string{"How tall should the cylinder be?\nPlease answer in inches."}, human.questions)
	require.Equal(t, []bridge.StatusMessage{bridge.InfoMessage("A 12 inch tall cylinder with a 2 inch radius.")}, human.messages)

	summary := model.callsFor(prompts.ClarifierSummary)[0].Params.(map[string]any)["Transcript"]
	require.Equal(t,
		"User: make a cylinder\nAssistant: How tall should the cylinder be? Please answer in inches.\nUser: 12 inches",
		summary,
	)
}

func TestClarifierTurnLimit(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Clarifier, "Width?", "Depth?").
		on(prompts.ClarifierSummary, "")
	human := &fakeHuman{answers: []string{"1", "2"}}
	env, metrics := testEnv(model, human)

	request, err := NewClarifier(env, 2).Invoke(context.Background(), "  a box ")
	require.NoError(t, err)
	require.Equal(t, "a box", request, "an empty summary falls back to the initial request")
	require.Len(t, human.questions, 2)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.CeilingHits.WithLabelValues("clarifier")))
}

func TestMathematician(t *testing.T) {
	model := newScriptedLLM().on(prompts.Mathematician, "radius = 1 in")
	env, _ := testEnv(model, &fakeHuman{})

	notes, err := NewMathematician(env, false).Invoke(context.Background(), "a cylinder")
	require.NoError(t, err)
	require.Equal(t, NoMathNotes, notes)
	require.Empty(t, model.calls)

	notes, err = NewMathematician(env, true).Invoke(context.Background(), "a cylinder")
	require.NoError(t, err)
	require.Equal(t, "radius = 1 in", notes)
}

func TestPlannerDegradesAtCeiling(t *testing.T) {
	model := newScriptedLLM().on(prompts.Planner, "# hmm", "# still thinking")
	env, _ := testEnv(model, &fakeHuman{})

	plan, err := NewPlanner(env, 2).Invoke(context.Background(), "a 2 inch cube", NoMathNotes)
	require.NoError(t, err)
	require.True(t, plan.Degraded)
	require.Equal(t, "a 2 inch cube", plan.Outline)

	params := model.callsFor(prompts.Planner)[0].Params.(map[string]any)
	require.Equal(t, NoMathNotes, params["MathNotes"])
	require.Contains(t, params["Tools"], "User Query")
}

func TestPlannerReturnsReport(t *testing.T) {
	model := newScriptedLLM().on(prompts.Planner, "command: Report\ninput:\n  content: |\n    1. Sketch a square.\n    2. Extrude it.\n")
	env, _ := testEnv(model, &fakeHuman{})

	plan, err := NewPlanner(env, 7).Invoke(context.Background(), "a cube", NoMathNotes)
	require.NoError(t, err)
	require.False(t, plan.Degraded)
	require.Equal(t, "1. Sketch a square.\n2. Extrude it.", plan.Outline)
	require.Equal(t, 1, plan.Iterations)
}

func TestReporterRenamesLibrary(t *testing.T) {
	model := newScriptedLLM().on(prompts.Reporter, "We will build a cube in OnPy.")
	human := &fakeHuman{}
	env, _ := testEnv(model, human)

	summary, err := NewReporter(env).Invoke(context.Background(), "outline")
	require.NoError(t, err)
	require.Equal(t, "We will build a cube in OnShape.", summary)
	require.Equal(t, []bridge.StatusMessage{bridge.InfoMessage(summary)}, human.messages)
}

type fakeWorkspace struct {
	results []tools.ExecResult
	paths   []string
	env     [][]string
}

func (w *fakeWorkspace) WriteScript(sessionID string, attempt int, _ string) (string, error) {
	path := fmt.Sprintf("%s/attempt-%03d.py", sessionID, attempt)
	w.paths = append(w.paths, path)
	return path, nil
}

func (w *fakeWorkspace) RunScript(_ context.Context, _ string, env []string) (tools.ExecResult, error) {
	w.env = append(w.env, env)
	i := len(w.env) - 1
	if i < len(w.results) {
		return w.results[i], nil
	}
	return tools.ExecResult{Stdout: "ok"}, nil
}

func newCoder(env Env, ws *fakeWorkspace, maxIterations int) *Coder {
	engine := &codegen.Engine{Workspace: ws, MaxRepairs: 10, Metrics: env.Metrics}
	return NewCoder(env, engine, "GUIDE", maxIterations)
}

func TestCoderRepairsThenUserAccepts(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Coder, "```python\nprint(x)\n```").
		on(prompts.CoderRepair, "```python\nx = 'cube'\nprint(x)\n```").
		on(prompts.Classifier, "Yes")
	ws := &fakeWorkspace{results: []tools.ExecResult{
		{Stderr: "NameError: name 'x' is not defined", ExitCode: 1},
		{Stdout: "cube\n"},
	}}
	human := &fakeHuman{answers: []string{"looks perfect"}}
	env, _ := testEnv(model, human)

	res, err := newCoder(env, ws, 10).Invoke(context.Background(), "a cube", "extrude a square")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, 2, res.Attempt.Index)
	require.Equal(t, "x = 'cube'\nprint(x)", res.Attempt.Source)
	require.Equal(t, "cube\n", res.Attempt.Stdout)

	require.Equal(t, []string{ConfirmationQuestion}, human.questions)
	require.Equal(t, []string{"sess-1/attempt-001.py", "sess-1/attempt-002.py"}, ws.paths)
	require.Equal(t, []string{"ONSHAPE_DEV_ACCESS=ak", "ONSHAPE_DEV_SECRET=sec"}, ws.env[0])

	coderCall := model.callsFor(prompts.Coder)[0]
	require.Equal(t, []string{"```\n\n", "Cell Output"}, coderCall.Stop)
	params := coderCall.Params.(map[string]any)
	require.Equal(t, "GUIDE", params["Guide"])
	require.Contains(t, params["Preamble"], `onpy.get_document("doc-1")`)

	repair := model.callsFor(prompts.CoderRepair)[0].Params.(map[string]any)
	require.Equal(t, "print(x)", repair["Code"])
	require.Equal(t, "NameError: name 'x' is not defined", repair["Error"])
	require.Empty(t, repair["Scratchpad"])

	classify := model.callsFor(prompts.Classifier)[0]
	require.Equal(t, "classifier", classify.Stage)
	require.Equal(t, []string{"\n"}, classify.Stop)
	require.Equal(t, "looks perfect", classify.Params.(map[string]any)["Answer"])
}

func TestCoderRejectionRestartsGeneration(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Coder, "```python\nprint('small')\n```", "```python\nprint('big')\n```").
		on(prompts.Classifier, "No", "yes.")
	ws := &fakeWorkspace{results: []tools.ExecResult{{Stdout: "small"}, {Stdout: "big"}}}
	human := &fakeHuman{answers: []string{"make it bigger", "great"}}
	env, _ := testEnv(model, human)

	res, err := newCoder(env, ws, 10).Invoke(context.Background(), "a cube", "outline")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, 2, res.Iterations)
	require.Equal(t, "print('big')", res.Attempt.Source)

	second := model.callsFor(prompts.Coder)[1].Params.(map[string]any)["Scratchpad"].(string)
	require.Contains(t, second, "print('small')")
	require.Contains(t, second, "Cell Output:\n```\nsmall\n```")
	require.Contains(t, second, `They responded: "make it bigger"`)
}

func TestCoderCeilingWithoutAcceptance(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Coder, "```python\na()\n```", "```python\nb()\n```").
		on(prompts.Classifier, "No", "No")
	human := &fakeHuman{answers: []string{"no", "still no"}}
	env, metrics := testEnv(model, human)

	res, err := newCoder(env, &fakeWorkspace{}, 2).Invoke(context.Background(), "a cube", "outline")
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, 2, res.Iterations)
	require.Equal(t, "b()", res.Attempt.Source)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.CeilingHits.WithLabelValues("coder")))
}

func TestCoderReplyWithoutCode(t *testing.T) {
	model := newScriptedLLM().
		on(prompts.Coder, "I would extrude a square.", "```python\nok()\n```").
		on(prompts.Classifier, "Yes")
	env, _ := testEnv(model, &fakeHuman{answers: []string{"yes"}})

	res, err := newCoder(env, &fakeWorkspace{}, 3).Invoke(context.Background(), "a cube", "outline")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, 1, res.Attempt.Index)

	second := model.callsFor(prompts.Coder)[1].Params.(map[string]any)["Scratchpad"].(string)
	require.True(t, strings.HasPrefix(second, "I would extrude a square."))
}

func TestCoderRepairBudgetExhausted(t *testing.T) {
	failing := make([]tools.ExecResult, 20)
	for i := range failing {
		failing[i] = tools.ExecResult{Stderr: "SyntaxError", ExitCode: 1}
	}
	repairs := make([]string, 10)
	for i := range repairs {
		repairs[i] = "```python\nbroken(\n```"
	}
	model := newScriptedLLM().
		on(prompts.Coder, "```python\nbroken(\n```").
		on(prompts.CoderRepair, repairs...)
	env, _ := testEnv(model, &fakeHuman{})

	_, err := newCoder(env, &fakeWorkspace{results: failing}, 10).Invoke(context.Background(), "a cube", "outline")
	require.ErrorIs(t, err, ErrBudgetExhausted)

	calls := model.callsFor(prompts.CoderRepair)
	require.Len(t, calls, 10)
	last := calls[9].Params.(map[string]any)["Scratchpad"].(string)
	require.Equal(t, 9, strings.Count(last, "Cell Error:"))
}
