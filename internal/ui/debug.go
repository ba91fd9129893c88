package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrida/chatloom/internal/events"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel showing pipeline stats and recent
// events. Pure function with no side effects. Returns empty string if
// ring is nil.
func debugOverlay(ring *events.Ring, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	statLine := func(label, value string) string {
		return "  " + DebugLabelStyle.Render(fmt.Sprintf("%-12s", label)) + DebugValueStyle.Render(value)
	}

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Pipeline Stats"))
	lines = append(lines, statLine("Polls:", fmt.Sprintf("%d started, %d complete, %d skipped, %d errors",
		stats[events.KindPollStart], stats[events.KindPollComplete], stats[events.KindPollSkip], stats[events.KindPollError])))
	lines = append(lines, statLine("Merges:", fmt.Sprintf("%d batches, %d prunes",
		stats[events.KindMergeBatch], stats[events.KindMergePrune])))
	lines = append(lines, statLine("Liveness:", fmt.Sprintf("%d transitions, %d exhausted",
		stats[events.KindLivenessChange], stats[events.KindExhausted])))
	lines = append(lines, statLine("Transcript:", fmt.Sprintf("%d flushes, %d errors",
		stats[events.KindRecordFlush], stats[events.KindRecordError])))
	lines = append(lines, statLine("Buffer:", fmt.Sprintf("%d / %d events", ring.Len(), ring.Cap())))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		age := time.Since(e.Time)
		line := fmt.Sprintf("  %6s  %-18s", formatAge(age), string(e.Kind))
		if e.Source != "" {
			line += "  " + e.Source
		}
		if e.Loop != "" {
			line += "  [" + e.Loop + "]"
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel
	// border/padding).
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	content := strings.Join(lines, "\n")
	return DebugPanel.Width(panelWidth).Render(content)
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("d") + StatusBarText.Render(":close")
	return StatusBar.Width(width).MaxHeight(1).Render("  [DEBUG]  " + keys)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return "…"
	}
	return string(runes[:maxLen-1]) + "…"
}
