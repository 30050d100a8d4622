package tui

import tea "github.com/charmbracelet/bubbletea"

// Notifier coalesces change signals from widgets and surfaces into a
// single pending redraw. Notify never blocks, so it is safe to call from
// delegate callbacks and rebind hooks.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify signals that something on screen may have changed.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// changedMsg is delivered after at least one Notify.
type changedMsg struct{}

// listen returns a tea.Cmd that blocks until the next change signal.
func (n *Notifier) listen() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return changedMsg{}
	}
}
