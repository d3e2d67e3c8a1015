package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// defaultListHeight is used until the terminal reports its size.
const defaultListHeight = 20

type modelState int

const (
	stateBrowse modelState = iota
	stateDetail
)

type inspectModel struct {
	err      error
	sess     *session
	open     func() (*session, error)
	filename string
	detail   string
	entries  []typeEntry
	visible  []int
	filter   textinput.Model
	selected int
	height   int
	state    modelState
}

func newInspectModel(filename string, open func() (*session, error)) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.Prompt = "/ "
	ti.Width = 40
	ti.Focus()
	return &inspectModel{
		filename: filename,
		open:     open,
		filter:   ti,
		height:   defaultListHeight,
		state:    stateBrowse,
	}
}

type loadedMsg struct {
	err  error
	sess *session
}

type dumpMsg struct {
	err  error
	text string
}

func (m *inspectModel) Init() tea.Cmd {
	return tea.Batch(m.load, textinput.Blink)
}

func (m *inspectModel) load() tea.Msg {
	s, err := m.open()
	return loadedMsg{sess: s, err: err}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateDetail || m.sess == nil {
				return m, tea.Quit
			}

		case "up":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down":
			if m.state == stateBrowse && m.selected < len(m.visible)-1 {
				m.selected++
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateBrowse:
				if len(m.visible) > 0 {
					return m, m.dump
				}
			case stateDetail:
				m.state = stateBrowse
				m.detail = ""
				m.err = nil
			}
			return m, nil

		case "esc":
			if m.state == stateDetail {
				m.state = stateBrowse
				m.detail = ""
				m.err = nil
				return m, nil
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		// title, blank, filter, blank, help
		m.height = max(msg.Height-5, 1)
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		m.entries = msg.sess.entries()
		m.applyFilter()
		return m, nil

	case dumpMsg:
		m.detail = msg.text
		m.err = msg.err
		m.state = stateDetail
		return m, nil
	}

	if m.state == stateBrowse {
		var cmd tea.Cmd
		before := m.filter.Value()
		m.filter, cmd = m.filter.Update(msg)
		if m.filter.Value() != before {
			m.applyFilter()
		}
		return m, cmd
	}
	return m, nil
}

// applyFilter keeps the entries whose full name contains the filter text,
// ignoring case.
func (m *inspectModel) applyFilter() {
	needle := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for i, e := range m.entries {
		if needle == "" || strings.Contains(strings.ToLower(e.name), needle) {
			m.visible = append(m.visible, i)
		}
	}
	m.selected = min(m.selected, max(len(m.visible)-1, 0))
}

func (m *inspectModel) current() (typeEntry, bool) {
	if m.selected >= len(m.visible) {
		return typeEntry{}, false
	}
	return m.entries[m.visible[m.selected]], true
}

func (m *inspectModel) dump() tea.Msg {
	e, ok := m.current()
	if !ok {
		return dumpMsg{err: errors.InvalidInput(errors.PhaseResolve, "no type selected")}
	}
	var b strings.Builder
	if err := ir.Dump(&b, m.sess.g, e.id); err != nil {
		return dumpMsg{err: err}
	}
	return dumpMsg{text: b.String()}
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state != stateDetail {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.sess == nil {
		return "Loading metadata..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("ildump"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		start := 0
		if m.selected >= m.height {
			start = m.selected - m.height + 1
		}
		end := min(start+m.height, len(m.visible))
		for i := start; i < end; i++ {
			e := m.entries[m.visible[i]]
			if i == m.selected {
				b.WriteString(selectedStyle.Render(fmt.Sprintf("> %-9s %s", e.kind, e.name)))
			} else {
				b.WriteString("  " + kindStyle.Render(fmt.Sprintf("%-9s", e.kind)) + " " + nameStyle.Render(e.name))
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n%s", helpStyle.Render(fmt.Sprintf("%d/%d types • ↑/↓ select • enter members • esc quit", len(m.visible), len(m.entries))))

	case stateDetail:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(m.detail)
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Browse types interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.InvalidInput(errors.PhaseResolve, "inspect needs an interactive terminal")
			}
			path := args[0]
			m := newInspectModel(path, func() (*session, error) {
				return openSession(path, opts.generics)
			})
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err := p.Run()
			return err
		},
	}
}
