package cli

import "github.com/charmbracelet/lipgloss"

type styles struct {
	session  lipgloss.Style
	info     lipgloss.Style
	query    lipgloss.Style
	final    lipgloss.Style
	failure  lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	empty    lipgloss.Style
	ok       lipgloss.Style
	warning  lipgloss.Style
	spinner  lipgloss.Style
	selected lipgloss.Style
}

func newStyles() styles {
	return styles{
		session:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		info:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		query:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		final:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		failure:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		cell:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		empty:    lipgloss.NewStyle().Faint(true),
		ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		spinner:  lipgloss.NewStyle().Foreground(lipgloss.Color("69")),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
	}
}

// status picks the style for a ledger status.
func (s styles) status(status string) lipgloss.Style {
	switch status {
	case "completed":
		return s.ok
	case "running", "unaccepted":
		return s.warning
	default:
		return s.failure
	}
}
