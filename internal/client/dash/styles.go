package dash

import "github.com/charmbracelet/lipgloss"

var (
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))

	titleStyle  = cyan.Bold(true)
	activeTab   = cyan.Bold(true).Underline(true)
	inactiveTab = gray
	staleStyle  = yellow
	errorStyle  = red
	helpStyle   = gray
	cursorStyle = green.Bold(true)
)
