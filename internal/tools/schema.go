package tools

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema describes a tool the planning model may invoke.
type Schema struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Usage       string        `json:"usage,omitempty"`
	Parameters  []SchemaField `json:"parameters"`
	Output      string        `json:"output,omitempty"`
}

// SchemaField describes a single parameter.
type SchemaField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

const toolsIntro = `You may use the following tools. To use one, reply with a YAML block of the form

command: <tool name>
input:
  <field>: <value>

Only one command per reply. Anything else you write is recorded as a thought.`

type promptTool struct {
	Command     string            `yaml:"command"`
	Description string            `yaml:"description"`
	Usage       string            `yaml:"usage,omitempty"`
	Input       map[string]string `yaml:"input"`
	Output      string            `yaml:"output"`
}

// Describe renders the tool list for the {{tools}} section of a prompt.
func (r *Registry) Describe() (string, error) {
	list := make([]promptTool, 0, len(r.order))
	for _, name := range r.order {
		s := r.tools[name].Schema
		input := make(map[string]string, len(s.Parameters))
		for _, p := range s.Parameters {
			input[p.Name] = p.Description
		}
		out := s.Output
		if out == "" {
			out = "none"
		}
		list = append(list, promptTool{
			Command:     s.Name,
			Description: s.Description,
			Usage:       s.Usage,
			Input:       input,
			Output:      out,
		})
	}
	data, err := yaml.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("render tool descriptions: %w", err)
	}
	return toolsIntro + "\n\n" + strings.TrimSpace(string(data)), nil
}
