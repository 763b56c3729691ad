package viz

import "github.com/charmbracelet/lipgloss"

// Theme colors the terminal view.
type Theme struct {
	Name     string
	Particle lipgloss.Color
	Collider lipgloss.Color
	Title    lipgloss.Color
	Text     lipgloss.Color
	Muted    lipgloss.Color
	Good     lipgloss.Color
	Warn     lipgloss.Color
	Bad      lipgloss.Color
}

var (
	ThemeCyberpunk = Theme{
		Name:     "cyberpunk",
		Particle: lipgloss.Color("#00ffff"),
		Collider: lipgloss.Color("#ff00ff"),
		Title:    lipgloss.Color("#ff00ff"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#666666"),
		Good:     lipgloss.Color("#00ff00"),
		Warn:     lipgloss.Color("#ff8800"),
		Bad:      lipgloss.Color("#ff0000"),
	}

	ThemeRetroGreen = Theme{
		Name:     "retro",
		Particle: lipgloss.Color("#00ff00"),
		Collider: lipgloss.Color("#88ff88"),
		Title:    lipgloss.Color("#00cc00"),
		Text:     lipgloss.Color("#00ff00"),
		Muted:    lipgloss.Color("#005500"),
		Good:     lipgloss.Color("#88ff88"),
		Warn:     lipgloss.Color("#ffff00"),
		Bad:      lipgloss.Color("#ff0000"),
	}

	ThemeOcean = Theme{
		Name:     "ocean",
		Particle: lipgloss.Color("#00a8cc"),
		Collider: lipgloss.Color("#ffd700"),
		Title:    lipgloss.Color("#0077be"),
		Text:     lipgloss.Color("#e0f0ff"),
		Muted:    lipgloss.Color("#4488aa"),
		Good:     lipgloss.Color("#00ff88"),
		Warn:     lipgloss.Color("#ffcc00"),
		Bad:      lipgloss.Color("#ff4444"),
	}

	CurrentTheme = ThemeCyberpunk

	Themes = []Theme{
		ThemeCyberpunk,
		ThemeRetroGreen,
		ThemeOcean,
	}
)

// GetTheme returns a theme by name, or the default.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeCyberpunk
}

func SetTheme(name string) {
	CurrentTheme = GetTheme(name)
}

// NextTheme switches to the theme after the current one.
func NextTheme() {
	for i, t := range Themes {
		if t.Name == CurrentTheme.Name {
			CurrentTheme = Themes[(i+1)%len(Themes)]
			return
		}
	}
	CurrentTheme = Themes[0]
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
