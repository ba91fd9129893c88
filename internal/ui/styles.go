package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorLive      = lipgloss.Color("78")  // Green
	colorError     = lipgloss.Color("196") // Red
)

// Header style for the top title bar.
var Header = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// SourceBar style for the per-source status row under the header.
var SourceBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("235")).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// LiveDot marks a source confirmed live.
var LiveDot = lipgloss.NewStyle().
	Foreground(colorLive).
	Bold(true)

// NotLiveDot marks a source confirmed not live.
var NotLiveDot = lipgloss.NewStyle().
	Foreground(colorError)

// UnknownDot marks a source whose liveness has not settled.
var UnknownDot = lipgloss.NewStyle().
	Foreground(colorMuted)

// HiddenSource style for sources toggled out of the stream.
var HiddenSource = lipgloss.NewStyle().
	Foreground(colorMuted).
	Strikethrough(true)

// RecordingDot marks an active transcript session in the status bar.
var RecordingDot = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true)

// PausedBadge style for the polling-stopped indicator.
var PausedBadge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(colorError).
	Padding(0, 1).
	Bold(true)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// DebugPanel frames the event-trail overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

// DebugLabelStyle for stat labels in the debug overlay.
var DebugLabelStyle = lipgloss.NewStyle().
	Foreground(colorSecondary)

// DebugValueStyle for stat values in the debug overlay.
var DebugValueStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))
