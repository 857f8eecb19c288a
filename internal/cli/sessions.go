package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/PolybrainAI/polybrain-core/internal/store"
)

// NewSessionsCmd lists recent sessions from the daemon's ledger.
func NewSessionsCmd(opts *Options) *cobra.Command {
	var limit int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions recorded by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig(opts)
				if err != nil {
					return err
				}
				if !cfg.Store.Enabled {
					return fmt.Errorf("the session ledger is disabled (store.enabled)")
				}
				dbPath = cfg.Store.Path
			}

			ledger, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			sessions, err := ledger.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderSessions(cmd.OutOrStdout(), newStyles(), sessions, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to show")
	cmd.Flags().StringVar(&dbPath, "db", "", "Ledger database path (default: store.path from config)")
	return cmd
}

var sessionColumns = []struct {
	title string
	width int
}{
	{"SESSION", 38},
	{"STATUS", 18},
	{"STARTED", 10},
	{"TOOK", 10},
	{"TRIES", 6},
	{"REQUEST", 0},
}

func renderSessions(out io.Writer, st styles, sessions []store.SessionSummary, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, st.empty.Render("No sessions recorded yet."))
		return
	}

	header := make([]string, len(sessionColumns))
	for i, col := range sessionColumns {
		header[i] = st.header.Width(col.width).Render(col.title)
	}
	fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, s := range sessions {
		took := "-"
		if s.EndedAt != nil {
			took = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		cells := []string{
			st.cell.Width(sessionColumns[0].width).Render(s.ID),
			st.status(s.Status).Width(sessionColumns[1].width).Render(s.Status),
			st.cell.Width(sessionColumns[2].width).Render(ago(now.Sub(s.StartedAt))),
			st.cell.Width(sessionColumns[3].width).Render(took),
			st.cell.Width(sessionColumns[4].width).Render(fmt.Sprint(s.Attempts)),
			st.cell.Render(firstLine(s.Request, 60)),
		}
		fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func firstLine(s string, limit int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}
