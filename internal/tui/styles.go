package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	doneColor    = lipgloss.Color("#10B981") // Green
	runningColor = lipgloss.Color("#60A5FA") // Blue
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	trackColor   = lipgloss.Color("#374151")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Width(10).
			Bold(true)

	filledStyle = lipgloss.NewStyle().Foreground(runningColor)
	emptyStyle  = lipgloss.NewStyle().Foreground(trackColor)
	valueStyle  = lipgloss.NewStyle().Width(9).Align(lipgloss.Right)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	doneStyle   = lipgloss.NewStyle().Foreground(doneColor).Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)
