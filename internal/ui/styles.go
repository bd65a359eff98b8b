package ui

import "github.com/charmbracelet/lipgloss"

// Palette (ANSI 256). One lime accent, grays for structure.
const (
	ColorLime     = "154"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the lipgloss styles used by the renderers.
type Styles struct {
	Header    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Active    lipgloss.Style
	Label     lipgloss.Style
	Speed     lipgloss.Style
	Border    lipgloss.Style
	Panel     lipgloss.Style
	Sparkline lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return Styles{
		Header:    fg(ColorLime).Bold(true),
		Success:   fg(ColorLime),
		Warning:   fg(ColorYellow),
		Error:     fg(ColorRed),
		Dim:       fg(ColorDarkGray),
		Active:    fg(ColorLime).Bold(true),
		Label:     fg(ColorGray),
		Speed:     fg(ColorGray),
		Border:    fg(ColorDarkGray),
		Sparkline: fg(ColorLime),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns unstyled components, keeping the panel border.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:    plain,
		Success:   plain,
		Warning:   plain,
		Error:     plain,
		Dim:       plain,
		Active:    plain,
		Label:     plain,
		Speed:     plain,
		Border:    plain,
		Sparkline: plain,
		Panel:     lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
	}
}

// GetStyles returns the styles for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
