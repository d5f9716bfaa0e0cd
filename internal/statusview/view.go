// Package statusview renders the bridge status file as a live terminal view.
package statusview

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pitwall/pitbridge/internal/monitor"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	stateStyles = map[string]lipgloss.Style{
		"idle":      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"resolving": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"applying":  lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
	}
)

type tickMsg time.Time

type statusMsg struct {
	status monitor.Status
	err    error
}

// Model is the bubbletea model of the status view.
type Model struct {
	path     string
	interval time.Duration
	read     func(string) (monitor.Status, error)

	status monitor.Status
	loaded bool
	err    error
	table  table.Model
}

// New creates a view polling the status file at path every interval.
func New(path string, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Outcome", Width: 12},
			{Title: "Count", Width: 7},
		}),
		table.WithHeight(6),
	)
	return Model{
		path:     path,
		interval: interval,
		read:     monitor.ReadStatus,
		table:    t,
	}
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	path, read := m.path, m.read
	return func() tea.Msg {
		status, err := read(path)
		return statusMsg{status: status, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.load()
	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.loaded = true
			m.table.SetRows(outcomeRows(msg.status.Outcomes))
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("pitbridge") + "\n\n")

	if m.loaded {
		s := m.status
		state := s.State
		if style, ok := stateStyles[state]; ok {
			state = style.Render(state)
		}
		line(&b, "Running game", orNone(s.RunningGame))
		line(&b, "State", state)
		if s.ActiveGame != "" {
			line(&b, "Applying for", s.ActiveGame)
		}
		line(&b, "Queued", strconv.Itoa(s.QueueLen))
		line(&b, "Updated", s.Time.Local().Format(time.TimeOnly))
		b.WriteString("\n" + m.table.View() + "\n")

		if l := s.Last; l != nil {
			last := fmt.Sprintf("%s %s on %s, %d actions in %dms", l.RequestID, l.Status, orNone(l.Game), l.Actions, l.DurationMs)
			if l.Error != "" {
				last += ": " + l.Error
			}
			b.WriteString("\n")
			line(&b, "Last", last)
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("q to quit") + "\n")
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label) + value + "\n")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func outcomeRows(counts map[string]int) []table.Row {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, table.Row{k, strconv.Itoa(counts[k])})
	}
	return rows
}
