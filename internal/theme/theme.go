// Package theme provides the Lip Gloss color palette and reusable styles
// for the chat TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorSystem  = lipgloss.Color("#9ca3af")
	ColorSelf    = lipgloss.Color("#f59e0b")
)

// Sender palette. Each nickname hashes to a stable entry.
var senderPalette = []lipgloss.Color{
	lipgloss.Color("#a855f7"),
	lipgloss.Color("#3b82f6"),
	lipgloss.Color("#06b6d4"),
	lipgloss.Color("#22c55e"),
	lipgloss.Color("#4285f4"),
	lipgloss.Color("#10b981"),
	lipgloss.Color("#e879f9"),
	lipgloss.Color("#fb7185"),
}

// SenderColor returns a stable color for a nickname.
func SenderColor(name string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(name))
	return senderPalette[h.Sum32()%uint32(len(senderPalette))]
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSystem = lipgloss.NewStyle().
		Italic(true).
		Foreground(ColorSystem)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)

	StyleSelf = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorSelf)
)
