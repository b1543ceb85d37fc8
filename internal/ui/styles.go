// Package ui renders dashagent output for the terminal: batch results,
// column reports, backup listings and diffs, plus the interactive shell.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	lightForeground = lipgloss.Color("#1b2733")
	lightPrimary    = lipgloss.Color("#1f4e79")
	lightAccent     = lipgloss.Color("#2e8b57")
	lightMuted      = lipgloss.Color("#8a949e")
	lightBorder     = lipgloss.Color("#d0d5db")

	darkForeground = lipgloss.Color("#eceff1")
	darkPrimary    = lipgloss.Color("#7fb3e0")
	darkAccent     = lipgloss.Color("#66cdaa")
	darkMuted      = lipgloss.Color("#6b7782")
	darkBorder     = lipgloss.Color("#34404c")

	// Semantic colors are the same in both modes.
	colorSuccess = lipgloss.Color("#43a047")
	colorError   = lipgloss.Color("#e53935")
	colorWarning = lipgloss.Color("#f9a825")
	colorInfo    = lipgloss.Color("#1e88e5")
)

// Theme is a color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light color scheme.
func LightTheme() Theme {
	return Theme{Foreground: lightForeground, Primary: lightPrimary, Accent: lightAccent, Muted: lightMuted, Border: lightBorder}
}

// DarkTheme returns the dark color scheme.
func DarkTheme() Theme {
	return Theme{Foreground: darkForeground, Primary: darkPrimary, Accent: darkAccent, Muted: darkMuted, Border: darkBorder, IsDark: true}
}

// DetectTheme picks a theme from COLORFGBG or DASHAGENT_DARK_MODE,
// defaulting to light.
func DetectTheme() Theme {
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && ((bg >= 0 && bg <= 6) || bg == 8) {
			return DarkTheme()
		}
	}
	if os.Getenv("DASHAGENT_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds the styles used across renderers.
type Styles struct {
	Theme Theme

	Header lipgloss.Style
	Title  lipgloss.Style
	Body   lipgloss.Style
	Muted  lipgloss.Style
	Bold   lipgloss.Style

	Prompt    lipgloss.Style
	UserInput lipgloss.Style
	Response  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Added   lipgloss.Style
	Removed lipgloss.Style
	Hunk    lipgloss.Style

	Spinner lipgloss.Style
	Divider lipgloss.Style
	Badge   lipgloss.Style
}

// NewStyles builds styles for a theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),
		Body:  lipgloss.NewStyle().Foreground(theme.Foreground),
		Muted: lipgloss.NewStyle().Foreground(theme.Muted),
		Bold:  lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true),

		Prompt:    lipgloss.NewStyle().Foreground(theme.Accent).Bold(true),
		UserInput: lipgloss.NewStyle().Foreground(theme.Foreground),
		Response: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colorInfo),

		Added:   lipgloss.NewStyle().Foreground(colorSuccess),
		Removed: lipgloss.NewStyle().Foreground(colorError),
		Hunk:    lipgloss.NewStyle().Foreground(colorInfo),

		Spinner: lipgloss.NewStyle().Foreground(theme.Accent),
		Divider: lipgloss.NewStyle().Foreground(theme.Border),
		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal rule.
func (s Styles) RenderDivider(width int) string {
	return s.Divider.Render(strings.Repeat("─", width))
}
