package display

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, loading
	SuccessColor = lipgloss.Color("#43BF6D") // Green - connected
	WarningColor = lipgloss.Color("#FFA500") // Orange - not connected
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary lines
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinWidth     = 32
	MaxWidth     = 60
	DefaultWidth = 40
)

var (
	// TitleStyle is for the first line of a status message
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	// BodyStyle is for the remaining lines
	BodyStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// HeaderStyle is for the TUI banner
	HeaderStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			PaddingLeft(1)

	// SpinnerStyle colours the loading spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// HelpStyle is for the key help line
	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(1)
)

// CardStyle returns the bordered box for a status card.
func CardStyle(border lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(width-2). // Account for border characters
		Padding(0, 1)
}

// WidthOf returns a card width for w: the terminal width when w is a
// terminal, clamped to [MinWidth, MaxWidth], otherwise DefaultWidth.
func WidthOf(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return DefaultWidth
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	if width < MinWidth {
		return MinWidth
	}
	if width > MaxWidth {
		return MaxWidth
	}
	return width
}
