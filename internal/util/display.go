package util

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Terminal color sequences
const (
	ColorReset   = "\033[0m"
	ColorBlue    = "\033[34m"
	ColorCyan    = "\033[36m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorRed     = "\033[31m"
	ColorMagenta = "\033[35m"
	ColorBold    = "\033[1m"
	ColorDim     = "\033[2m"
)

// GetDisplayWidth calculates the terminal width of a string, accounting for emojis
func GetDisplayWidth(text string) int {
	return runewidth.StringWidth(text)
}

// PadRight pads text with spaces up to width display columns.
func PadRight(text string, width int) string {
	return runewidth.FillRight(text, width)
}

// TruncateToWidth shortens text to at most width display columns, marking
// the cut with "...".
func TruncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return runewidth.Truncate(text, width, "")
	}
	return runewidth.Truncate(text, width, "...")
}

// TypeColor picks a color for an entry type class.
func TypeColor(typeClass string) string {
	base := typeClass
	if i := strings.IndexByte(base, '-'); i > 0 {
		base = base[:i]
	}
	switch base {
	case "telemetry":
		return ColorCyan
	case "task":
		return ColorBlue
	case "incident":
		return ColorRed
	case "agent":
		return ColorMagenta
	case "communication":
		return ColorGreen
	default:
		return ColorYellow
	}
}

// Colorize wraps text in color unless color is disabled.
func Colorize(text, color string, enabled bool) string {
	if !enabled || color == "" {
		return text
	}
	return color + text + ColorReset
}

// FormatHeaderTitle formats main header titles (Magenta + Bold)
func FormatHeaderTitle(title string) string {
	return fmt.Sprintf("%s%s%s%s", ColorBold, ColorMagenta, title, ColorReset)
}

// FormatSectionSeparator creates a separator line of the given width.
func FormatSectionSeparator(width int) string {
	if width <= 0 {
		width = 80
	}
	return strings.Repeat("─", width)
}
