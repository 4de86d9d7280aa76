package preferences

import "github.com/cockroachdb/errors"

type Density string

const (
	DensityComfortable Density = "comfortable"
	DensityNormal      Density = "normal"
	DensityCompact     Density = "compact"
)

// Viewport breakpoints, in CSS pixels
const (
	CompactMaxWidth = 1024
	NormalMaxWidth  = 1440
)

// DensityForWidth maps a viewport width to a density. An unknown width
// (zero, as before the first resize report) maps to normal.
func DensityForWidth(width int) Density {
	switch {
	case width <= 0:
		return DensityNormal
	case width < CompactMaxWidth:
		return DensityCompact
	case width < NormalMaxWidth:
		return DensityNormal
	default:
		return DensityComfortable
	}
}

func ParseDensity(s string) (Density, error) {
	switch d := Density(s); d {
	case DensityComfortable, DensityNormal, DensityCompact:
		return d, nil
	}
	return "", errors.Newf("unknown density %q", s)
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", errors.Newf("unknown theme %q", s)
}
