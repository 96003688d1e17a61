package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Adaptive colors for light/dark terminal backgrounds
	accentColor = lipgloss.AdaptiveColor{Light: "#D6249F", Dark: "#FF79C6"}
	greenColor  = lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"}
	yellowColor = lipgloss.AdaptiveColor{Light: "#7D5A00", Dark: "#F1FA8C"}
	redColor    = lipgloss.AdaptiveColor{Light: "#B31D28", Dark: "#FF5555"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			PaddingLeft(1)

	busyStyle = lipgloss.NewStyle().
			Foreground(yellowColor)

	okStyle = lipgloss.NewStyle().
		Foreground(greenColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(redColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	inputLabelStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := titleStyle.Render("upyide")
	switch {
	case m.exchange != nil && m.exchange.Busy():
		title += " " + busyStyle.Render("busy")
	case m.err != nil:
		title += " " + errorStyle.Render(fmt.Sprintf("error: %v", m.err))
	case m.status != "":
		title += " " + okStyle.Render(m.status)
	}
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	// Prompt and help share a slot to avoid layout shift
	if m.prompt != promptNone {
		b.WriteString(inputLabelStyle.Render(" > "))
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter confirm  esc cancel"))
	} else {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("ctrl+r run  ctrl+l list " + m.Dir + "  ctrl+u upload  ctrl+k clear  ctrl+q quit"))
	}
	b.WriteString("\n")

	return b.String()
}
