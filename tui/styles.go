// Package tui is the Bubble Tea view of an inkcheck session
package tui

import (
	"strings"

	"inkcheck/session"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"} // Ink blue
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"} // Pencil violet
	ColorAccent    = lipgloss.AdaptiveColor{Light: "#CA8A04", Dark: "#FACC15"} // Highlighter

	ColorSuccess = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#F87171"}

	ColorText   = lipgloss.AdaptiveColor{Light: "#1E293B", Dark: "#F1F5F9"}
	ColorSubtle = lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#94A3B8"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#64748B"}
	ColorBorder = lipgloss.AdaptiveColor{Light: "#CBD5E1", Dark: "#334155"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	BodyStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	FocusedBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	BannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Foreground(ColorError).
			Bold(true).
			Padding(0, 2)

	BadgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Background(ColorAccent).
			Foreground(lipgloss.Color("#1E293B"))

	BadgeSuccessStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(ColorSuccess).
				Foreground(lipgloss.Color("#FFFFFF"))
)

// Header returns the styled application title
func Header() string {
	return lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Render("INKCHECK - Handwriting Feedback")
}

var indicatorSteps = []struct {
	state session.State
	title string
}{
	{session.Idle, "Select"},
	{session.Previewing, "Preview"},
	{session.Analyzing, "Analyze"},
	{session.Results, "Results"},
}

// StateIndicator renders the session progress as a row of steps
func StateIndicator(current session.State) string {
	var b strings.Builder
	for i, step := range indicatorSteps {
		var icon string
		var style lipgloss.Style

		switch {
		case step.state < current:
			icon = "[x]"
			style = lipgloss.NewStyle().Foreground(ColorSuccess)
		case step.state == current:
			icon = "[>]"
			style = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
		default:
			icon = "[ ]"
			style = lipgloss.NewStyle().Foreground(ColorMuted)
		}

		b.WriteString(style.Render(icon + " " + step.title))
		if i < len(indicatorSteps)-1 {
			connector := lipgloss.NewStyle().Foreground(ColorMuted)
			if step.state < current {
				connector = lipgloss.NewStyle().Foreground(ColorSuccess)
			}
			b.WriteString(connector.Render(" --- "))
		}
	}
	return b.String()
}

// KeyHelp renders key/description pairs in order
func KeyHelp(pairs ...string) string {
	if len(pairs) < 2 {
		return ""
	}

	helpStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	keyStyle := lipgloss.NewStyle().Foreground(ColorSubtle).Bold(true)

	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, keyStyle.Render(pairs[i])+" "+helpStyle.Render(pairs[i+1]))
	}
	return helpStyle.Render(strings.Join(parts, "  |  "))
}
