// Package ui centralizes terminal styling for the aqua CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/untoldecay/aqua/internal/types"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// colorized reports whether the terminal wants color. termenv honors
// NO_COLOR and dumb terminals.
func colorized() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !colorized() {
		return s
	}
	return style.Render(s)
}

// Success formats a green checkmark line.
func Success(format string, args ...any) string {
	return render(successStyle, "✓") + " " + fmt.Sprintf(format, args...)
}

// Error formats a red error prefix line.
func Error(format string, args ...any) string {
	return render(errorStyle, "Error:") + " " + fmt.Sprintf(format, args...)
}

// Warn formats a yellow warning line.
func Warn(format string, args ...any) string {
	return render(warnStyle, "!") + " " + fmt.Sprintf(format, args...)
}

// Bold emphasizes a string.
func Bold(s string) string { return render(boldStyle, s) }

// Accent highlights identifiers (agent names, task ids).
func Accent(s string) string { return render(accentStyle, s) }

// Muted dims secondary detail.
func Muted(s string) string { return render(mutedStyle, s) }

// AgentStatus colors an agent status word.
func AgentStatus(s types.AgentStatus) string {
	switch s {
	case types.AgentActive:
		return render(successStyle, string(s))
	case types.AgentIdle:
		return render(warnStyle, string(s))
	case types.AgentDead:
		return render(errorStyle, string(s))
	default:
		return string(s)
	}
}

// TaskStatus colors a task status word.
func TaskStatus(s types.TaskStatus) string {
	switch s {
	case types.TaskPending:
		return render(warnStyle, string(s))
	case types.TaskClaimed:
		return render(accentStyle, string(s))
	case types.TaskDone:
		return render(successStyle, string(s))
	case types.TaskFailed, types.TaskAbandoned:
		return render(errorStyle, string(s))
	default:
		return string(s)
	}
}

// Header renders a section title with an underline.
func Header(title string) string {
	return Bold(title) + "\n" + Muted(strings.Repeat("─", len([]rune(title))))
}
