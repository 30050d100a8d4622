package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Row is one resource shown by the model.
type Row struct {
	Name    string
	Surface *tray.Surface
}

// committedMsg reports the outcome of an asynchronous commit.
type committedMsg struct {
	row int
	err error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	nameStyle     = lipgloss.NewStyle().Width(16)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	separatorText = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" │ ")
)

// Model is the bubbletea model over a set of surfaces.
type Model struct {
	ctx      context.Context
	title    string
	rows     []Row
	notifier *Notifier
	logger   logger.Logger

	cursor int
	// deltas holds the uncommitted step count per row.
	deltas []int
	status string
}

// New creates a Model. Surfaces should be opened with
// tray.WithOnRebind(n.Notify) so rebinds redraw the screen.
func New(ctx context.Context, title string, rows []Row, n *Notifier) Model {
	m := Model{
		ctx:      ctx,
		title:    title,
		rows:     rows,
		notifier: n,
		logger:   logger.OrGlobal(nil).Named("tui"),
		deltas:   make([]int, len(rows)),
	}
	m.watch()
	return m
}

// watch hooks the current widgets of every row to the notifier. Widgets
// are replaced on rebind, so this runs again after every change signal.
func (m Model) watch() {
	for _, r := range m.rows {
		v := r.Surface.View()
		if v == nil {
			continue
		}
		v.Input.OnChange(m.notifier.Notify)
		v.Output.OnChange(m.notifier.Notify)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.notifier.listen()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case changedMsg:
		m.watch()
		return m, m.notifier.listen()
	case committedMsg:
		if msg.err != nil {
			m.status = "commit failed: " + msg.err.Error()
			m.logger.Warn(m.ctx, "commit failed", logger.String("row", m.rows[msg.row].Name), logger.Error(msg.err))
			return m, nil
		}
		m.deltas[msg.row] = 0
		m.status = "saved " + m.rows[msg.row].Name
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "left", "h":
		m.step(-1)
	case "right", "l":
		m.step(1)
	case "enter", " ":
		return m, m.commit()
	}
	return m, nil
}

func (m *Model) step(d int) {
	if len(m.rows) == 0 {
		return
	}
	m.deltas[m.cursor] += d
	m.status = ""
}

// commit records the pending value of the selected row.
func (m Model) commit() tea.Cmd {
	if len(m.rows) == 0 {
		return nil
	}
	row := m.cursor
	v := m.rows[row].Surface.View()
	if v == nil {
		return nil
	}
	value := v.Input.Step(m.deltas[row])
	ctx := m.ctx
	return func() tea.Msg {
		return committedMsg{row: row, err: v.Input.Commit(ctx, value)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for i, r := range m.rows {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		b.WriteString(cursor)
		b.WriteString(nameStyle.Render(r.Name))
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		if strings.HasPrefix(m.status, "commit failed") {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(m.status)
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select • ←/→ adjust • enter commit • q quit"))
	return b.String()
}

func (m Model) renderRow(i int, r Row) string {
	v := r.Surface.View()
	if v == nil {
		if err := r.Surface.Err(); err != nil {
			return errorStyle.Render(err.Error())
		}
		return errorStyle.Render("unavailable")
	}
	s := v.Input.View() + separatorText + v.Output.View()
	if d := m.deltas[i]; d != 0 {
		s += pendingStyle.Render(fmt.Sprintf("  (pending %s)", v.Input.Step(d)))
	}
	return s
}
