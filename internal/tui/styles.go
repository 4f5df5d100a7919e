package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles contains the style definitions for the reader
type Styles struct {
	Title         lipgloss.Style
	Status        lipgloss.Style
	StatusLoading lipgloss.Style
	StatusError   lipgloss.Style
	StatusDone    lipgloss.Style
	Separator     lipgloss.Style
	Help          lipgloss.Style
}

// NewStyles creates a new Styles instance with default values
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")),
		Status:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		StatusLoading: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Separator:     lipgloss.NewStyle().Faint(true),
		Help:          lipgloss.NewStyle().Faint(true),
	}
}
