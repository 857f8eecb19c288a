package tools

import (
	"fmt"
	"strings"
)

// Kind tells the agent loop what to do with an invocation.
type Kind int

const (
	// KindHumanQuery asks the user a question and records the answer.
	KindHumanQuery Kind = iota + 1
	// KindReport submits the final deliverable and ends the loop.
	KindReport
)

// Tool is a registered command.
type Tool struct {
	Schema  Schema
	Kind    Kind
	Aliases []string
	// Payload names the input field holding the question or the report.
	Payload string
}

// Registry resolves command names the model writes to registered tools.
type Registry struct {
	tools map[string]Tool
	index map[string]string
	order []string
}

// NewRegistry builds a registry from the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool),
		index: make(map[string]string),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names and aliases must be unique after normalization.
func (r *Registry) Register(t Tool) error {
	if t.Schema.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Kind == 0 {
		return fmt.Errorf("tool %q must declare a kind", t.Schema.Name)
	}
	keys := append([]string{t.Schema.Name}, t.Aliases...)
	for _, k := range keys {
		if owner, ok := r.index[normalizeCommand(k)]; ok {
			return fmt.Errorf("tool name %q already used by %q", k, owner)
		}
	}
	for _, k := range keys {
		r.index[normalizeCommand(k)] = t.Schema.Name
	}
	r.tools[t.Schema.Name] = t
	r.order = append(r.order, t.Schema.Name)
	return nil
}

// Lookup finds a tool by any of its names, ignoring case, spaces,
// underscores and hyphens.
func (r *Registry) Lookup(command string) (Tool, bool) {
	name, ok := r.index[normalizeCommand(command)]
	if !ok {
		return Tool{}, false
	}
	return r.tools[name], true
}

// Schema returns schema for a given tool name if present.
func (r *Registry) Schema(name string) (Schema, bool) {
	t, ok := r.Lookup(name)
	return t.Schema, ok
}

// Schemas lists registered tools in registration order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema)
	}
	return out
}

func normalizeCommand(s string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(strings.TrimSpace(s)) {
		switch ch {
		case ' ', '_', '-', '.', '"', '\'':
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// AskUser is the human-query tool.
func AskUser() Tool {
	return Tool{
		Schema: Schema{
			Name:        "User Query",
			Description: "Useful for when you need to ask the user a question. Ask one thing at a time.",
			Usage:       "Use this to get information about the user's request.",
			Parameters: []SchemaField{
				{Name: "question", Type: "string", Description: "The question to ask the user", Required: true},
			},
			Output: "The user's answer to the question",
		},
		Kind:    KindHumanQuery,
		Aliases: []string{"AskUser", "Ask User", "Ask User A Question"},
		Payload: "question",
	}
}

// Report is the terminal tool that submits the final deliverable.
func Report() Tool {
	return Tool{
		Schema: Schema{
			Name:        "Report",
			Description: "Submits the final report",
			Usage:       "Put the entire contents of the final report into this tool",
			Parameters: []SchemaField{
				{Name: "content", Type: "string", Description: "The contents of the report", Required: true},
			},
		},
		Kind:    KindReport,
		Aliases: []string{"SubmitReport", "Submit Report", "Submit Final Report"},
		Payload: "content",
	}
}

// PlannerTools returns the registry used by the planning stage.
func PlannerTools() *Registry {
	r, err := NewRegistry(AskUser(), Report())
	if err != nil {
		panic(err)
	}
	return r
}
