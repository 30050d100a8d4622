package widget

import "github.com/charmbracelet/lipgloss"

// Theme holds the colors built-in widgets render with. Colors are ANSI 256
// codes.
type Theme struct {
	Active   lipgloss.Color
	Inactive lipgloss.Color
	Value    lipgloss.Color
	Empty    lipgloss.Color
}

// DefaultTheme suits dark terminals.
var DefaultTheme = Theme{
	Active:   lipgloss.Color("42"),
	Inactive: lipgloss.Color("240"),
	Value:    lipgloss.Color("252"),
	Empty:    lipgloss.Color("244"),
}

func (t Theme) style(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}
