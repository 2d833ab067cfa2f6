package session

import "github.com/charmbracelet/lipgloss"

var (
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
)
