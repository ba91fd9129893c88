// Package ui provides the Bubble Tea TUI for chatloom.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/config"
	"github.com/nerrida/chatloom/internal/events"
	"github.com/nerrida/chatloom/internal/liveness"
	"github.com/nerrida/chatloom/internal/mergelog"
	"github.com/nerrida/chatloom/internal/mux"
	"github.com/nerrida/chatloom/internal/telemetry"
	"github.com/nerrida/chatloom/internal/transcript"
	"github.com/nerrida/chatloom/internal/ui/stream"
	"github.com/nerrida/chatloom/internal/window"
)

// uiChrome is the number of lines reserved around the timeline: the
// title header, the source bar, and the status bar.
const uiChrome = 3

// flushInterval is how often queued transcript messages are written out.
const flushInterval = 2 * time.Second

// flushTickMsg drives the transcript flush cadence.
type flushTickMsg struct{}

// flushDoneMsg carries one flush outcome back onto the loop.
type flushDoneMsg struct {
	saved int
	err   error
}

// Deps carries everything the root model wires together. Recorder, Trail
// and Ring may be nil; the corresponding surfaces stay off.
type Deps struct {
	Config     *config.Config
	Fetcher    mux.Fetcher
	Log        *mergelog.Log
	Classifier *liveness.Classifier
	Recorder   *transcript.Recorder
	Trail      *events.Trail
	Ring       *events.Ring
}

// App is the root Bubble Tea model. All mutable collaborators are held
// by pointer so the value copies bubbletea makes on every Update share
// one engine, one log, and one timeline.
type App struct {
	cfg      *config.Config
	engine   *mux.Multiplexer
	log      *mergelog.Log
	recorder *transcript.Recorder
	trail    *events.Trail
	ring     *events.Ring

	timeline  *stream.Model
	sourceIDs []string

	spinner   spinner.Model
	width     int
	height    int
	ready     bool
	showDebug bool
	err       error
}

// New builds the root model and its polling engine. The merge hook set
// here runs on the update loop after every insert; it only touches
// pointer-held state so it stays valid across model copies.
func New(deps Deps) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorHighlight)

	engine := mux.New(deps.Fetcher, deps.Log, deps.Classifier, deps.Trail, mux.Options{
		ContentInterval:  deps.Config.ContentInterval(),
		MetadataInterval: deps.Config.MetadataInterval(),
		PageSize:         deps.Config.PageSize,
		RecentIDSample:   deps.Config.RecentIDSampleSize,
	})

	ids := make([]string, 0, len(deps.Config.Sources))
	for _, s := range deps.Config.Sources {
		ids = append(ids, s.ID)
	}

	recorder := deps.Recorder
	engine.SetMergeHook(func(added []chat.Message, stats mergelog.InsertStats) {
		if recorder != nil {
			recorder.Queue(added)
		}
		telemetry.CountMerge(stats.Added, stats.Duplicates, stats.Pruned)
	})

	return App{
		cfg:       deps.Config,
		engine:    engine,
		log:       deps.Log,
		recorder:  recorder,
		trail:     deps.Trail,
		ring:      deps.Ring,
		timeline:  stream.New(80, 24-uiChrome, deps.Config.FollowDistanceThreshold),
		sourceIDs: ids,
		spinner:   sp,
	}
}

// Init arms the polling loops, the spinner, and the flush cadence.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.engine.Start(a.sourceIDs)}
	if a.recorder != nil {
		cmds = append(cmds, flushTick())
	}
	return tea.Batch(cmds...)
}

func flushTick() tea.Cmd {
	return tea.Tick(flushInterval, func(time.Time) tea.Msg {
		return flushTickMsg{}
	})
}

// Update handles messages and returns the updated model and any commands.
// With CHATLOOM_TRACE set, every message is bracketed by trace events on
// the trail.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if events.TraceEnabled() {
		a.emit(events.Event{Level: events.LevelDebug, Kind: events.KindMsgReceived, Comp: "ui", Msg: fmt.Sprintf("%T", msg)})
		start := time.Now()
		model, cmd := a.update(msg)
		a.emit(events.Event{Level: events.LevelDebug, Kind: events.KindMsgHandled, Comp: "ui", Msg: fmt.Sprintf("%T", msg), Dur: time.Since(start)})
		return model, cmd
	}
	return a.update(msg)
}

func (a App) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.timeline.SetSize(msg.Width, max(1, msg.Height-uiChrome))
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case flushTickMsg:
		if a.recorder == nil {
			return a, nil
		}
		return a, tea.Batch(a.flushCmd(), flushTick())

	case flushDoneMsg:
		if msg.err != nil {
			a.err = msg.err
			a.emit(events.Event{Level: events.LevelError, Kind: events.KindRecordError, Comp: "ui", Err: msg.err.Error()})
		} else if msg.saved > 0 {
			telemetry.CountFlush(msg.saved)
			a.emit(events.Event{Level: events.LevelDebug, Kind: events.KindRecordFlush, Comp: "ui", Count: msg.saved})
		}
		return a, nil

	case mux.ContentResultMsg:
		cmd := a.engine.Update(msg)
		telemetry.CountPoll("content")
		a.refreshTimeline()
		a.syncSourceGauges()
		return a, cmd

	case mux.MetadataResultMsg:
		cmd := a.engine.Update(msg)
		telemetry.CountPoll("metadata")
		a.syncSourceGauges()
		return a, cmd

	case mux.ContentTickMsg, mux.MetadataTickMsg:
		return a, a.engine.Update(msg)

	case mux.LivenessChangedMsg:
		a.syncSourceGauges()
		return a, nil

	case mux.SourcesExhaustedMsg:
		// Header reads engine.Exhausted directly; nothing to store.
		return a, nil
	}

	return a, nil
}

// handleKey processes keyboard input.
func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.err != nil {
		a.err = nil
	}

	s := msg.String()

	// Digits toggle source visibility by position in the configured order.
	if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		if idx := int(s[0] - '1'); idx < len(a.sourceIDs) {
			id := a.sourceIDs[idx]
			state := "shown"
			if a.timeline.ToggleSource(id) {
				state = "hidden"
			}
			a.emit(events.Event{Level: events.LevelDebug, Kind: events.KindKeyPress, Comp: "ui", Source: id, Msg: state})
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		a.engine.Stop()
		a.emit(events.Event{Level: events.LevelInfo, Kind: events.KindShutdown, Comp: "ui"})
		return a, tea.Quit

	case key.Matches(msg, keys.Debug):
		a.showDebug = !a.showDebug
		return a, nil

	case key.Matches(msg, keys.ScrollDown):
		a.scroll(1)
		return a, nil

	case key.Matches(msg, keys.ScrollUp):
		a.scroll(-1)
		return a, nil

	case key.Matches(msg, keys.PageDown):
		before := a.timeline.Mode()
		a.timeline.PageDown()
		a.noteModeChange(before)
		return a, nil

	case key.Matches(msg, keys.PageUp):
		before := a.timeline.Mode()
		a.timeline.PageUp()
		a.noteModeChange(before)
		return a, nil

	case key.Matches(msg, keys.Follow):
		before := a.timeline.Mode()
		a.timeline.ResumeFollow()
		a.noteModeChange(before)
		return a, nil

	case key.Matches(msg, keys.Top):
		before := a.timeline.Mode()
		a.timeline.JumpTop()
		a.noteModeChange(before)
		return a, nil

	case key.Matches(msg, keys.Pause):
		if a.engine.Running() {
			a.engine.Stop()
			a.emit(events.Event{Level: events.LevelInfo, Kind: events.KindKeyPress, Comp: "ui", Msg: "polling stopped"})
		}
		return a, nil

	case key.Matches(msg, keys.Restart):
		a.engine.Stop()
		a.emit(events.Event{Level: events.LevelInfo, Kind: events.KindKeyPress, Comp: "ui", Msg: "polling restarted"})
		return a, a.engine.Start(a.sourceIDs)
	}

	return a, nil
}

func (a App) scroll(lines int) {
	before := a.timeline.Mode()
	a.timeline.ScrollBy(lines)
	a.noteModeChange(before)
}

// noteModeChange emits a trail event when a scroll crossed the
// follow/free boundary in either direction.
func (a App) noteModeChange(before window.Mode) {
	after := a.timeline.Mode()
	if before == after {
		return
	}
	kind := events.KindWindowResume
	if after == window.Free {
		kind = events.KindWindowDetach
	}
	a.emit(events.Event{Level: events.LevelDebug, Kind: kind, Comp: "ui", Msg: after.String()})
}

// refreshTimeline hands the timeline a fresh log snapshot.
func (a App) refreshTimeline() {
	a.timeline.SetMessages(a.log.Items(), a.log.Version())
	telemetry.SetLogSize(a.log.Len())
}

func (a App) syncSourceGauges() {
	active, retired := 0, 0
	for _, s := range a.engine.Sources() {
		if s.State == liveness.NotLive {
			retired++
		} else {
			active++
		}
	}
	telemetry.SetSourceStates(active, retired)
}

func (a App) flushCmd() tea.Cmd {
	rec := a.recorder
	return func() tea.Msg {
		saved, err := rec.Flush()
		return flushDoneMsg{saved: saved, err: err}
	}
}

func (a App) emit(e events.Event) {
	if a.trail != nil {
		a.trail.Emit(e)
	}
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Starting chatloom..."
	}

	header := a.renderHeader()
	sourceBar := a.renderSourceBar()

	if a.showDebug {
		overlay := debugOverlay(a.ring, a.width, max(1, a.height-uiChrome))
		return lipgloss.JoinVertical(lipgloss.Left, header, sourceBar, overlay, debugStatusBar(a.width))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, sourceBar, a.timeline.View(), a.renderFooter())
}

func (a App) renderHeader() string {
	title := "chatloom"
	switch {
	case a.engine.Exhausted():
		title += "  all sources ended, r restarts"
	case !a.engine.Running():
		title += "  " + PausedBadge.Render("polling stopped")
	case a.log.Len() == 0:
		title += "  " + a.spinner.View() + " waiting for first batch"
	}
	return Header.Width(a.width).MaxHeight(1).Render(title)
}

func (a App) renderSourceBar() string {
	stats := a.engine.Sources()
	if len(stats) == 0 {
		return SourceBar.Width(a.width).MaxHeight(1).Render("no sources")
	}

	parts := make([]string, 0, len(stats))
	for i, s := range stats {
		dot := UnknownDot.Render("◌")
		switch s.State {
		case liveness.Live:
			dot = LiveDot.Render("●")
		case liveness.NotLive:
			dot = NotLiveDot.Render("○")
		}

		label := fmt.Sprintf("%d:%s", i+1, s.ID)
		if a.timeline.IsHidden(s.ID) {
			label = HiddenSource.Render(label)
		} else {
			label = stream.SourceColor(s.ID).Render(label)
		}

		part := dot + label
		if s.Title != "" {
			part += StatusBarText.Render(" " + truncateRunes(s.Title, 20))
		}
		if s.Viewers > 0 {
			part += StatusBarText.Render(" " + formatCount(s.Viewers))
		}
		parts = append(parts, part)
	}
	return SourceBar.Width(a.width).MaxHeight(1).Render(strings.Join(parts, "  "))
}

// renderFooter builds the status bar. MaxHeight keeps it to one line
// when the hint string outgrows a narrow terminal.
func (a App) renderFooter() string {
	if a.err != nil {
		return StatusBar.Width(a.width).MaxHeight(1).Render(
			ErrorStyle.Render("record error: "+truncateRunes(a.err.Error(), 60)) +
				StatusBarText.Render("  any key dismisses"))
	}

	mode := StatusBarKey.Render(strings.ToUpper(a.timeline.Mode().String()))
	left := mode
	if a.timeline.Mode() == window.Free {
		left += StatusBarText.Render(" g:follow")
	}

	stats := StatusBarText.Render(fmt.Sprintf("  %d msgs", a.log.Len()))
	if pruned := a.log.PrunedTotal(); pruned > 0 {
		stats += StatusBarText.Render(fmt.Sprintf(" (%d pruned)", pruned))
	}

	rec := ""
	if a.recorder != nil {
		rec = "  " + RecordingDot.Render("●") + StatusBarText.Render("rec")
	}

	hints := StatusBarText.Render("  j/k:scroll 1-9:sources d:debug p:pause r:restart q:quit")
	return StatusBar.Width(a.width).MaxHeight(1).Render(left + stats + rec + hints)
}

// formatCount renders viewer counts compactly: 950, 1.2k, 30k.
func formatCount(n int) string {
	switch {
	case n >= 10000:
		return fmt.Sprintf("%dk", n/1000)
	case n >= 1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Engine exposes the polling engine (for testing).
func (a App) Engine() *mux.Multiplexer {
	return a.engine
}

// Timeline exposes the stream view (for testing).
func (a App) Timeline() *stream.Model {
	return a.timeline
}

// ShowingDebug reports whether the debug overlay is up (for testing).
func (a App) ShowingDebug() bool {
	return a.showDebug
}
