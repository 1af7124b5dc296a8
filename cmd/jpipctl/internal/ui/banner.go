package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
)

// BannerStyle defines the styling for the ASCII banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#3e8fb0")).
	Bold(true)

// SubtleStyle renders dim separators and secondary text.
var SubtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

// PrintBanner prints the "JPIP" ASCII art banner to stderr.
func PrintBanner() {
	banner := figure.NewFigure("JPIP", "banner3", true)

	fmt.Fprintln(os.Stderr, BannerStyle.Render(banner.String()))
	fmt.Fprintln(os.Stderr)
}
