package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is a named color palette.
type Theme struct {
	Name string

	Background lipgloss.Color
	Surface    lipgloss.Color
	SurfaceAlt lipgloss.Color
	Selection  lipgloss.Color
	OnSelect   lipgloss.Color
	Border     lipgloss.Color
	Focus      lipgloss.Color

	Text    lipgloss.Color
	Muted   lipgloss.Color
	Faint   lipgloss.Color
	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Info    lipgloss.Color
	Offline lipgloss.Color
}

// statusColor maps entry, image and connection states onto the palette.
func (t Theme) statusColor(status string) lipgloss.Color {
	switch status {
	case "pending":
		return t.Warning
	case "confirmed", "completed":
		return t.Success
	case "rolled-back", "failed":
		return t.Danger
	case "offline":
		return t.Offline
	default:
		return t.Muted
	}
}

// Styles derives the lipgloss styles used by every view.
func (t Theme) Styles() Styles {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	bar := lipgloss.NewStyle().Background(t.Surface).Padding(0, 1)

	return Styles{
		Text:        fg(t.Text),
		MutedText:   fg(t.Muted),
		FaintText:   fg(t.Faint),
		AccentText:  fg(t.Accent).Bold(true),
		SuccessText: fg(t.Success).Bold(true),
		WarningText: fg(t.Warning),
		DangerText:  fg(t.Danger).Bold(true),
		InfoText:    fg(t.Info),

		Header:   bar.Foreground(t.Text),
		Footer:   bar.Foreground(t.Muted),
		Logo:     fg(t.Warning).Bold(true),
		Selected: lipgloss.NewStyle().Background(t.Selection).Foreground(t.OnSelect),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		Modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Focus).
			Background(t.SurfaceAlt).
			Padding(1, 2),

		theme: t,
	}
}

// Styles are the rendered styles of one theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	InfoText    lipgloss.Style

	Header   lipgloss.Style
	Footer   lipgloss.Style
	Logo     lipgloss.Style
	Selected lipgloss.Style
	Panel    lipgloss.Style
	Modal    lipgloss.Style

	theme Theme
}

// StatusStyle returns a badge for status ("pending", "failed", "offline"...).
func (s Styles) StatusStyle(status string) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.theme.Background).
		Background(s.theme.statusColor(status)).
		Padding(0, 1)
}

// Palettes in cycle order; the first is the default.
var palettes = []Theme{
	{
		// https://github.com/EdenEast/nightfox.nvim
		Name:       "Nightfox",
		Background: "#131a24",
		Surface:    "#192330",
		SurfaceAlt: "#212e3f",
		Selection:  "#2b3b51",
		OnSelect:   "#cdcecf",
		Border:     "#39506d",
		Focus:      "#719cd6",
		Text:       "#cdcecf",
		Muted:      "#738091",
		Faint:      "#71839b",
		Accent:     "#719cd6",
		Success:    "#81b29a",
		Warning:    "#dbc074",
		Danger:     "#c94f6d",
		Info:       "#63cdcf",
		Offline:    "#f4a261",
	},
	{
		// https://github.com/rebelot/kanagawa.nvim
		Name:       "Kanagawa",
		Background: "#16161D",
		Surface:    "#1F1F28",
		SurfaceAlt: "#2A2A37",
		Selection:  "#2D4F67",
		OnSelect:   "#DCD7BA",
		Border:     "#54546D",
		Focus:      "#7E9CD8",
		Text:       "#DCD7BA",
		Muted:      "#C8C093",
		Faint:      "#727169",
		Accent:     "#7E9CD8",
		Success:    "#98BB6C",
		Warning:    "#E6C384",
		Danger:     "#E46876",
		Info:       "#7FB4CA",
		Offline:    "#FFA066",
	},
	{
		// Tailwind slate and sky.
		Name:       "Slate",
		Background: "#020617",
		Surface:    "#0f172a",
		SurfaceAlt: "#1e293b",
		Selection:  "#0284c7",
		OnSelect:   "#f8fafc",
		Border:     "#334155",
		Focus:      "#38bdf8",
		Text:       "#f1f5f9",
		Muted:      "#94a3b8",
		Faint:      "#64748b",
		Accent:     "#38bdf8",
		Success:    "#16a34a",
		Warning:    "#f59e0b",
		Danger:     "#dc2626",
		Info:       "#06b6d4",
		Offline:    "#ea580c",
	},
}

// GetTheme returns the named theme, or the default for unknown names.
func GetTheme(name string) Theme {
	for _, t := range palettes {
		if t.Name == name {
			return t
		}
	}
	return palettes[0]
}

// NextTheme returns the theme after current in the cycle.
func NextTheme(current string) string {
	for i, t := range palettes {
		if t.Name == current {
			return palettes[(i+1)%len(palettes)].Name
		}
	}
	return palettes[0].Name
}

// ThemeNames lists the available themes in cycle order.
func ThemeNames() []string {
	names := make([]string, len(palettes))
	for i, t := range palettes {
		names[i] = t.Name
	}
	return names
}
