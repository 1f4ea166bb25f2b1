package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	barFilled = '█'
	barEmpty  = '░'
)

// RenderBar draws a usage bar of width cells followed by the percentage,
// e.g. "████░░░░  50%". percent is clamped to 0-100 and colored by
// ThresholdColor.
func RenderBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	filled := int((percent / 100.0) * float64(width))

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(string(barFilled), filled))
	sb.WriteString(strings.Repeat(string(barEmpty), width-filled))

	style := lipgloss.NewStyle().Foreground(ThresholdColor(percent))
	return style.Render(sb.String()) + fmt.Sprintf(" %3.0f%%", percent)
}
