package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// errAnswerCanceled is returned when the user leaves a question unanswered.
var errAnswerCanceled = errors.New("question left unanswered")

// terminal is how a session talks to the person at the keyboard.
type terminal interface {
	// Ask shows question and returns the typed answer.
	Ask(ctx context.Context, question string) (string, error)
	// Wait runs fn while showing that the daemon is busy.
	Wait(ctx context.Context, label string, fn func() error) error
}

// plainTerminal reads answers line by line, for pipes and scripts.
type plainTerminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newPlainTerminal(in io.Reader, out io.Writer) *plainTerminal {
	return &plainTerminal{in: bufio.NewReader(in), out: out}
}

func (p *plainTerminal) Ask(ctx context.Context, question string) (string, error) {
	fmt.Fprint(p.out, "> ")
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errAnswerCanceled
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), ctx.Err()
}

func (p *plainTerminal) Wait(_ context.Context, _ string, fn func() error) error {
	return fn()
}

// teaTerminal uses bubbletea programs for answers and busy spinners.
type teaTerminal struct {
	in  io.Reader
	out io.Writer
	st  styles
}

func (t *teaTerminal) Ask(ctx context.Context, question string) (string, error) {
	p := tea.NewProgram(newAnswerModel(question, t.st),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(answerModel)
	if !ok {
		return "", fmt.Errorf("unexpected final answer model type %T", final)
	}
	if m.canceled {
		return "", errAnswerCanceled
	}
	return m.input.Value(), nil
}

func (t *teaTerminal) Wait(ctx context.Context, label string, fn func() error) error {
	work := func() tea.Msg {
		return waitDoneMsg{err: fn()}
	}
	p := tea.NewProgram(newWaitModel(label, work, t.st),
		tea.WithInput(nil),
		tea.WithOutput(t.out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		return err
	}
	m, ok := final.(waitModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", final)
	}
	return m.err
}

type answerModel struct {
	input    textinput.Model
	done     bool
	canceled bool
}

func newAnswerModel(question string, st styles) answerModel {
	in := textinput.New()
	in.Placeholder = "Type your answer"
	in.Prompt = "> "
	in.PromptStyle = st.query
	in.TextStyle = st.selected
	in.CharLimit = 4000
	in.Focus()
	return answerModel{input: in}
}

func (m answerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m answerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			if strings.TrimSpace(m.input.Value()) == "" {
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.canceled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m answerModel) View() string {
	if m.done || m.canceled {
		return ""
	}
	return m.input.View() + "\n"
}

type waitDoneMsg struct {
	err error
}

type waitModel struct {
	spinner spinner.Model
	label   string
	work    tea.Cmd
	err     error
	done    bool
}

func newWaitModel(label string, work tea.Cmd, st styles) waitModel {
	return waitModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.spinner)),
		label:   label,
		work:    work,
	}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.work)
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case waitDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}
