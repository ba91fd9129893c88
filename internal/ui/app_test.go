package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/config"
	"github.com/nerrida/chatloom/internal/events"
	"github.com/nerrida/chatloom/internal/liveness"
	"github.com/nerrida/chatloom/internal/mergelog"
	"github.com/nerrida/chatloom/internal/mux"
	"github.com/nerrida/chatloom/internal/window"
)

// stubFetcher satisfies mux.Fetcher. These tests never execute the async
// fetch commands; poll results are injected as messages instead.
type stubFetcher struct{}

func (stubFetcher) FetchContent(context.Context, []string, mux.Cursor, int) (mux.ContentBatch, error) {
	return mux.ContentBatch{}, nil
}

func (stubFetcher) FetchMetadata(context.Context, []string) (mux.MetadataBatch, error) {
	return mux.MetadataBatch{}, nil
}

func testApp(sourceIDs ...string) App {
	cfg := config.Default()
	cfg.Sources = nil
	for _, id := range sourceIDs {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{ID: id, Kind: config.KindSim})
	}
	return New(Deps{
		Config:     cfg,
		Fetcher:    stubFetcher{},
		Log:        mergelog.New(0, 0),
		Classifier: liveness.NewClassifier(),
		Ring:       events.NewRing(64),
	})
}

func sized(a App) App {
	m, _ := a.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m.(App)
}

func press(t *testing.T, a App, r rune) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return m.(App), cmd
}

func feedContent(t *testing.T, a App, msgs ...chat.Message) App {
	t.Helper()
	m, _ := a.Update(mux.ContentResultMsg{
		Gen:   a.Engine().Generation(),
		Batch: mux.ContentBatch{Events: msgs},
	})
	return m.(App)
}

func chatMsg(i int, source string) chat.Message {
	return chat.Message{
		ID:         fmt.Sprintf("%s-%d", source, i),
		SourceID:   source,
		Author:     chat.Author{Name: "ann"},
		Text:       "hey",
		OccurredAt: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
	}
}

func TestViewBeforeFirstWindowSize(t *testing.T) {
	app := testApp("alpha")
	if got := app.View(); got != "Starting chatloom..." {
		t.Errorf("View() = %q, want starting banner", got)
	}
}

func TestWindowSizeReadiesTheView(t *testing.T) {
	app := testApp("alpha", "bravo")
	app.Init()
	app = sized(app)

	view := app.View()
	for _, want := range []string{"chatloom", "waiting for first batch", "1:alpha", "2:bravo", "FOLLOWING", "q:quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if lines := strings.Split(view, "\n"); len(lines) != 24 {
		t.Errorf("View() has %d lines, want 24", len(lines))
	}
}

func TestQuitKeysStopPolling(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp("alpha")
			app.Init()

			_, cmd := app.Update(tt.msg)
			if app.Engine().Running() {
				t.Error("engine still running after quit key")
			}
			if cmd == nil {
				t.Fatal("quit returned no command")
			}
			if msg := cmd(); msg != (tea.QuitMsg{}) {
				t.Errorf("quit command returned %T, want tea.QuitMsg", msg)
			}
		})
	}
}

func TestDigitKeysToggleSourceVisibility(t *testing.T) {
	app := testApp("alpha", "bravo")
	app.Init()
	app = sized(app)

	app, _ = press(t, app, '1')
	if !app.Timeline().IsHidden("alpha") {
		t.Error("pressing 1 did not hide the first source")
	}
	if app.Timeline().IsHidden("bravo") {
		t.Error("pressing 1 hid the wrong source")
	}

	app, _ = press(t, app, '1')
	if app.Timeline().IsHidden("alpha") {
		t.Error("second press did not unhide the source")
	}

	app, _ = press(t, app, '9')
	for _, id := range []string{"alpha", "bravo"} {
		if app.Timeline().IsHidden(id) {
			t.Errorf("out-of-range digit hid %s", id)
		}
	}
}

func TestDebugOverlayToggle(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	app = sized(app)

	app, _ = press(t, app, 'd')
	if !app.ShowingDebug() {
		t.Fatal("d did not open the debug overlay")
	}
	view := app.View()
	for _, want := range []string{"[DEBUG]", "Pipeline Stats", "d:close"} {
		if !strings.Contains(view, want) {
			t.Errorf("debug view missing %q", want)
		}
	}

	app, _ = press(t, app, 'd')
	if app.ShowingDebug() {
		t.Error("second d did not close the overlay")
	}
	if !strings.Contains(app.View(), "FOLLOWING") {
		t.Error("footer not restored after closing the overlay")
	}
}

func TestContentResultsFlowToTimeline(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	app = sized(app)

	app = feedContent(t, app, chatMsg(0, "alpha"), chatMsg(1, "alpha"))

	view := app.View()
	if !strings.Contains(view, "alpha ann: hey") {
		t.Errorf("View() missing merged message, got:\n%s", view)
	}
	if !strings.Contains(view, "2 msgs") {
		t.Error("footer does not count the merged messages")
	}
	if lines := strings.Split(view, "\n"); len(lines) != 24 {
		t.Errorf("View() has %d lines, want 24", len(lines))
	}
}

func TestStaleContentResultIsDropped(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	stale := app.Engine().Generation()

	app, _ = press(t, app, 'p')

	m, _ := app.Update(mux.ContentResultMsg{
		Gen:   stale,
		Batch: mux.ContentBatch{Events: []chat.Message{chatMsg(0, "alpha")}},
	})
	app = m.(App)

	if n := app.log.Len(); n != 0 {
		t.Errorf("stale result merged %d messages, want 0", n)
	}
}

func TestPauseAndRestart(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	app = sized(app)

	app, _ = press(t, app, 'p')
	if app.Engine().Running() {
		t.Fatal("p did not stop polling")
	}
	if !strings.Contains(app.View(), "polling stopped") {
		t.Error("header does not announce the stopped state")
	}

	var cmd tea.Cmd
	app, cmd = press(t, app, 'r')
	if !app.Engine().Running() {
		t.Fatal("r did not restart polling")
	}
	if cmd == nil {
		t.Error("restart returned no command to arm the loops")
	}
}

func TestRecordErrorShowsUntilKeypress(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	app = sized(app)

	m, _ := app.Update(flushDoneMsg{err: errors.New("disk full")})
	app = m.(App)

	view := app.View()
	if !strings.Contains(view, "record error: disk full") {
		t.Errorf("footer missing the flush error, got:\n%s", view)
	}
	if !strings.Contains(view, "any key dismisses") {
		t.Error("footer missing the dismissal hint")
	}

	app, _ = press(t, app, 'j')
	if strings.Contains(app.View(), "record error") {
		t.Error("keypress did not clear the error")
	}
}

func TestFlushTickWithoutRecorderIsInert(t *testing.T) {
	app := testApp("alpha")
	if _, cmd := app.Update(flushTickMsg{}); cmd != nil {
		t.Error("flush tick without a recorder returned a command")
	}
}

func TestScrollDetachesAndFollowResumes(t *testing.T) {
	app := testApp("alpha")
	app.Init()
	app = sized(app)

	msgs := make([]chat.Message, 30)
	for i := range msgs {
		msgs[i] = chatMsg(i, "alpha")
	}
	app = feedContent(t, app, msgs...)

	app, _ = press(t, app, 'b')
	if got := app.Timeline().Mode(); got != window.Free {
		t.Fatalf("Mode() after page up = %v, want %v", got, window.Free)
	}
	view := app.View()
	if !strings.Contains(view, "FREE") {
		t.Error("footer does not show the detached mode")
	}
	if !strings.Contains(view, "g:follow") {
		t.Error("footer does not hint how to resume following")
	}

	app, _ = press(t, app, 'g')
	if got := app.Timeline().Mode(); got != window.Following {
		t.Errorf("Mode() after g = %v, want %v", got, window.Following)
	}
}

func TestMetadataRefreshesSourceBar(t *testing.T) {
	app := testApp("alpha", "bravo")
	app.Init()
	app = sized(app)

	m, _ := app.Update(mux.MetadataResultMsg{
		Gen: app.Engine().Generation(),
		Batch: mux.MetadataBatch{Records: []mux.SourceRecord{
			{SourceID: "alpha", Title: "Morning Show", Viewers: 1234},
		}},
	})
	app = m.(App)

	view := app.View()
	if !strings.Contains(view, "Morning Show") {
		t.Error("source bar missing the fetched title")
	}
	if !strings.Contains(view, "1.2k") {
		t.Error("source bar missing the viewer count")
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{950, "950"},
		{1000, "1.0k"},
		{1234, "1.2k"},
		{9999, "10.0k"},
		{10000, "10k"},
		{25400, "25k"},
	}

	for _, tt := range tests {
		if got := formatCount(tt.n); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
