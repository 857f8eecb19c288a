// Package prompts holds the prompt templates of every pipeline stage.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"
)

// Template names.
const (
	Clarifier        = "clarifier"
	ClarifierSummary = "clarifier_summary"
	Mathematician    = "mathematician"
	Planner          = "planner"
	Reporter         = "reporter"
	Coder            = "coder"
	CoderRepair      = "coder_repair"
	Classifier       = "classifier"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const ext = ".tmpl"

// Set is a parsed collection of templates. It is safe for concurrent use.
type Set struct {
	tmpl *template.Template
}

// Load parses the built-in templates.
func Load() (*Set, error) {
	return LoadFS(templateFS, "templates")
}

// LoadFS parses every *.tmpl file under dir in fsys. A parameter missing
// from the map passed to Render is an error rather than "<no value>".
func LoadFS(fsys fs.FS, dir string) (*Set, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(fsys, path.Join(dir, "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &Set{tmpl: tmpl}, nil
}

// Render executes the named template. params is normally a map[string]any.
func (s *Set) Render(name string, params any) (string, error) {
	t := s.tmpl.Lookup(name + ext)
	if t == nil {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}

// Names lists the available templates.
func (s *Set) Names() []string {
	var out []string
	for _, t := range s.tmpl.Templates() {
		if name, ok := strings.CutSuffix(t.Name(), ext); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
