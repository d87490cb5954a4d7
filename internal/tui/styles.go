package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("62")
	muted   = lipgloss.Color("243")
	dim     = lipgloss.Color("240")
	success = lipgloss.Color("42")
	danger  = lipgloss.Color("196")
	warning = lipgloss.Color("214")
	pink    = lipgloss.Color("212")

	appTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(accent).
			Padding(0, 1)

	screenTitleStyle = lipgloss.NewStyle().
				Foreground(muted).
				Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	secondaryPanelStyle = panelStyle.BorderForeground(dim)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(pink).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(accent)

	boldStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	italicStyle  = lipgloss.NewStyle().Foreground(muted).Italic(true)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning).Bold(true)
	labelStyle   = lipgloss.NewStyle().Width(16).Foreground(muted)
	codeStyle    = lipgloss.NewStyle().Foreground(success)

	noticeStyle      = lipgloss.NewStyle().Foreground(success).Padding(0, 1)
	noticeErrorStyle = lipgloss.NewStyle().Foreground(danger).Bold(true).Padding(0, 1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(warning).
			Padding(1, 2).
			Width(60)
)

// onOff renders a status bar toggle.
func onOff(on bool) string {
	if on {
		return successStyle.Render("ON")
	}
	return dimStyle.Render("OFF")
}
