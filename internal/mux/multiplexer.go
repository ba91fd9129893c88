// Package mux drives the two polling loops that feed the merge log: a
// content loop pulling chat events and a metadata loop refreshing source
// titles and viewer counts. Both run as tick chains on the bubbletea
// event loop; fetch I/O happens inside command goroutines and re-enters
// the loop as result messages.
package mux

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/events"
	"github.com/nerrida/chatloom/internal/liveness"
	"github.com/nerrida/chatloom/internal/mergelog"
)

const (
	DefaultContentInterval  = 5 * time.Second
	DefaultMetadataInterval = 10 * time.Second
	DefaultFetchTimeout     = 10 * time.Second
	DefaultPageSize         = 200
	DefaultRecentIDSample   = 300
)

// Fetcher is the boundary to the scraping subsystem. Implementations may
// fail, return partial results, or return per-source error strings; no
// atomicity across sources is assumed.
type Fetcher interface {
	FetchContent(ctx context.Context, sources []string, cursor Cursor, pageSize int) (ContentBatch, error)
	FetchMetadata(ctx context.Context, sources []string) (MetadataBatch, error)
}

// Options tunes the polling loops. Zero values take the defaults above.
type Options struct {
	ContentInterval  time.Duration
	MetadataInterval time.Duration
	FetchTimeout     time.Duration
	PageSize         int
	RecentIDSample   int
}

func (o Options) withDefaults() Options {
	if o.ContentInterval <= 0 {
		o.ContentInterval = DefaultContentInterval
	}
	if o.MetadataInterval <= 0 {
		o.MetadataInterval = DefaultMetadataInterval
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RecentIDSample <= 0 {
		o.RecentIDSample = DefaultRecentIDSample
	}
	return o
}

// sourceState is the multiplexer's book-keeping for one tracked source.
type sourceState struct {
	id           string
	state        liveness.State
	lastPolledAt time.Time
	failures     int // consecutive cycles with an error string; informational only
	title        string
	viewers      int
}

// SourceStatus is the read-only per-source view handed to the
// presentation layer.
type SourceStatus struct {
	ID           string
	State        liveness.State
	LastPolledAt time.Time
	Failures     int
	Title        string
	Viewers      int
}

// Multiplexer owns the tracked source set and both polling loops. It is
// not goroutine-safe: every method must run on the program's Update
// goroutine. Command goroutines touch nothing but their captured
// arguments, so stopping is synchronous: Stop bumps the generation and
// every tick or result stamped with an older generation is discarded
// before any state is read or written.
type Multiplexer struct {
	fetcher Fetcher
	log     *mergelog.Log
	cls     *liveness.Classifier
	trail   *events.Trail // optional
	opts    Options

	gen       uint64
	running   bool
	exhausted bool
	sources   []*sourceState

	contentInFlight bool
	metaInFlight    bool

	onMerge func(added []chat.Message, stats mergelog.InsertStats)
}

// New builds a Multiplexer inserting into log. trail may be nil.
func New(f Fetcher, log *mergelog.Log, cls *liveness.Classifier, trail *events.Trail, opts Options) *Multiplexer {
	return &Multiplexer{
		fetcher: f,
		log:     log,
		cls:     cls,
		trail:   trail,
		opts:    opts.withDefaults(),
	}
}

// SetMergeHook registers a callback invoked on the update loop after each
// merge with the newly added messages. The transcript recorder taps in
// here.
func (m *Multiplexer) SetMergeHook(fn func(added []chat.Message, stats mergelog.InsertStats)) {
	m.onMerge = fn
}

// Start replaces the tracked source set and arms both polling loops,
// superseding any previous registration. Blank and duplicate ids are
// dropped. The returned command delivers the first tick of each loop
// immediately.
func (m *Multiplexer) Start(sourceIDs []string) tea.Cmd {
	m.gen++
	m.running = true
	m.exhausted = false
	m.contentInFlight = false
	m.metaInFlight = false

	m.sources = m.sources[:0]
	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m.sources = append(m.sources, &sourceState{id: id, state: liveness.Unknown})
	}

	gen := m.gen
	return tea.Batch(
		func() tea.Msg { return ContentTickMsg{Gen: gen} },
		func() tea.Msg { return MetadataTickMsg{Gen: gen} },
	)
}

// Stop halts both loops. Synchronous with respect to future callbacks:
// after Stop returns, no armed tick or in-flight fetch result can reach
// the merge log.
func (m *Multiplexer) Stop() {
	if !m.running {
		return
	}
	m.running = false
	m.gen++
	m.contentInFlight = false
	m.metaInFlight = false
}

// Running reports whether the loops are armed.
func (m *Multiplexer) Running() bool {
	return m.running
}

// Exhausted reports whether every tracked source went not-live this run.
func (m *Multiplexer) Exhausted() bool {
	return m.exhausted
}

// Generation returns the current run generation, for diagnostics.
func (m *Multiplexer) Generation() uint64 {
	return m.gen
}

// Sources returns a snapshot of per-source state for display.
func (m *Multiplexer) Sources() []SourceStatus {
	out := make([]SourceStatus, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, SourceStatus{
			ID:           s.id,
			State:        s.state,
			LastPolledAt: s.lastPolledAt,
			Failures:     s.failures,
			Title:        s.title,
			Viewers:      s.viewers,
		})
	}
	return out
}

// Update dispatches one multiplexer message. Messages from a previous
// generation are dropped before any state is touched.
func (m *Multiplexer) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ContentTickMsg:
		if msg.Gen != m.gen || !m.running {
			return nil
		}
		return m.contentTick()

	case MetadataTickMsg:
		if msg.Gen != m.gen || !m.running {
			return nil
		}
		return m.metadataTick()

	case ContentResultMsg:
		if msg.Gen != m.gen || !m.running {
			return nil
		}
		m.contentInFlight = false
		return m.applyContent(msg)

	case MetadataResultMsg:
		if msg.Gen != m.gen || !m.running {
			return nil
		}
		m.metaInFlight = false
		return m.applyMetadata(msg)
	}
	return nil
}

func (m *Multiplexer) contentTick() tea.Cmd {
	active := m.activeIDs()
	if len(active) == 0 {
		return m.exhaust()
	}

	rearm := m.armContent()
	if m.contentInFlight {
		// Slow fetch: skip this cycle's dispatch rather than stack a
		// second one.
		m.emit(events.Event{Level: events.LevelDebug, Kind: events.KindPollSkip, Comp: "mux", Loop: "content"})
		return rearm
	}
	m.contentInFlight = true

	var cursor Cursor
	if newest, ok := m.log.Newest(); ok {
		cursor.Since = newest.OccurredAt
	}
	cursor.RecentIDs = m.log.RecentIDs(m.opts.RecentIDSample)

	m.stampPolled()
	m.emit(events.Event{Level: events.LevelDebug, Kind: events.KindPollStart, Comp: "mux", Loop: "content", Count: len(active)})

	return tea.Batch(m.fetchContentCmd(m.gen, active, cursor), rearm)
}

func (m *Multiplexer) metadataTick() tea.Cmd {
	active := m.activeIDs()
	if len(active) == 0 {
		return m.exhaust()
	}

	rearm := m.armMetadata()
	if m.metaInFlight {
		m.emit(events.Event{Level: events.LevelDebug, Kind: events.KindPollSkip, Comp: "mux", Loop: "metadata"})
		return rearm
	}
	m.metaInFlight = true

	m.stampPolled()
	m.emit(events.Event{Level: events.LevelDebug, Kind: events.KindPollStart, Comp: "mux", Loop: "metadata", Count: len(active)})

	return tea.Batch(m.fetchMetadataCmd(m.gen, active), rearm)
}

// fetchContentCmd captures everything the command goroutine needs by
// value; it must not touch the multiplexer.
func (m *Multiplexer) fetchContentCmd(gen uint64, sources []string, cursor Cursor) tea.Cmd {
	fetcher := m.fetcher
	timeout := m.opts.FetchTimeout
	pageSize := m.opts.PageSize
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		batch, err := fetcher.FetchContent(ctx, sources, cursor, pageSize)
		return ContentResultMsg{Gen: gen, Batch: batch, Err: err}
	}
}

func (m *Multiplexer) fetchMetadataCmd(gen uint64, sources []string) tea.Cmd {
	fetcher := m.fetcher
	timeout := m.opts.FetchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		batch, err := fetcher.FetchMetadata(ctx, sources)
		return MetadataResultMsg{Gen: gen, Batch: batch, Err: err}
	}
}

func (m *Multiplexer) armContent() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.opts.ContentInterval, func(time.Time) tea.Msg {
		return ContentTickMsg{Gen: gen}
	})
}

func (m *Multiplexer) armMetadata() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.opts.MetadataInterval, func(time.Time) tea.Msg {
		return MetadataTickMsg{Gen: gen}
	})
}

// applyContent merges one content cycle. Liveness transitions apply
// before any insert, so a batch that both carries events for a source and
// declares it dead never merges those events.
func (m *Multiplexer) applyContent(msg ContentResultMsg) tea.Cmd {
	if msg.Err != nil {
		// Whole-call failure: transient by definition, next tick retries.
		for _, s := range m.sources {
			if s.state != liveness.NotLive {
				s.failures++
			}
		}
		m.emit(events.Event{Level: events.LevelWarn, Kind: events.KindPollError, Comp: "mux", Loop: "content", Err: msg.Err.Error()})
		return nil
	}

	cmd := m.applyLiveness(msg.Batch.Errors)
	m.markFailures(msg.Batch.Errors)

	groups := make(map[string][]chat.Message)
	var order []string
	dropped := 0
	for _, e := range msg.Batch.Events {
		s := m.lookup(e.SourceID)
		if s == nil || s.state == liveness.NotLive {
			dropped++
			continue
		}
		if _, ok := groups[e.SourceID]; !ok {
			order = append(order, e.SourceID)
		}
		groups[e.SourceID] = append(groups[e.SourceID], e)
	}

	for _, id := range order {
		added, stats := m.log.InsertBatch(id, groups[id])
		if m.onMerge != nil && len(added) > 0 {
			m.onMerge(added, stats)
		}
		m.emit(events.Event{
			Level: events.LevelInfo, Kind: events.KindMergeBatch, Comp: "mux",
			Source: id, Added: stats.Added, Dups: stats.Duplicates, Pruned: stats.Pruned,
		})
		if stats.Pruned > 0 {
			m.emit(events.Event{Level: events.LevelInfo, Kind: events.KindMergePrune, Comp: "mux", Pruned: stats.Pruned, Count: m.log.Len()})
		}
	}

	m.promoteLive(msg.Batch.Errors)

	done := events.Event{Level: events.LevelDebug, Kind: events.KindPollComplete, Comp: "mux", Loop: "content", Count: len(msg.Batch.Events)}
	if dropped > 0 {
		done.Extra = map[string]any{"dropped": dropped}
	}
	m.emit(done)
	return cmd
}

// applyMetadata refreshes titles and viewer counts. Records never drive
// liveness; only classified error strings do.
func (m *Multiplexer) applyMetadata(msg MetadataResultMsg) tea.Cmd {
	if msg.Err != nil {
		m.emit(events.Event{Level: events.LevelWarn, Kind: events.KindPollError, Comp: "mux", Loop: "metadata", Err: msg.Err.Error()})
		return nil
	}

	cmd := m.applyLiveness(msg.Batch.Errors)

	for _, rec := range msg.Batch.Records {
		s := m.lookup(rec.SourceID)
		if s == nil {
			continue
		}
		s.title = rec.Title
		s.viewers = rec.Viewers
	}

	m.emit(events.Event{Level: events.LevelDebug, Kind: events.KindPollComplete, Comp: "mux", Loop: "metadata", Count: len(msg.Batch.Records)})
	return cmd
}

// applyLiveness classifies one cycle's error strings and applies NotLive
// transitions. Returns a command announcing each transition.
func (m *Multiplexer) applyLiveness(rawErrors []string) tea.Cmd {
	if len(rawErrors) == 0 {
		return nil
	}

	current := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		if s.state != liveness.NotLive {
			current = append(current, s.id)
		}
	}

	dead := m.cls.Classify(rawErrors, current)
	if len(dead) == 0 {
		return nil
	}

	var cmds []tea.Cmd
	for _, id := range dead {
		s := m.lookup(id)
		if s == nil || s.state == liveness.NotLive {
			continue
		}
		s.state = liveness.NotLive
		m.emit(events.Event{Level: events.LevelWarn, Kind: events.KindLivenessChange, Comp: "mux", Source: id, State: liveness.NotLive.String()})
		id := id
		cmds = append(cmds, func() tea.Msg {
			return LivenessChangedMsg{SourceID: id, State: liveness.NotLive}
		})
	}
	return tea.Batch(cmds...)
}

// promoteLive marks Unknown sources Live after a cycle that produced no
// error string for them.
func (m *Multiplexer) promoteLive(rawErrors []string) {
	for _, s := range m.sources {
		if s.state != liveness.Unknown {
			continue
		}
		if sourceMentioned(rawErrors, s.id) {
			continue
		}
		s.state = liveness.Live
		m.emit(events.Event{Level: events.LevelInfo, Kind: events.KindLivenessChange, Comp: "mux", Source: s.id, State: liveness.Live.String()})
	}
}

// markFailures bumps the informational failure counter for sources named
// in this cycle's errors and clears it for the rest.
func (m *Multiplexer) markFailures(rawErrors []string) {
	for _, s := range m.sources {
		if s.state == liveness.NotLive {
			continue
		}
		if sourceMentioned(rawErrors, s.id) {
			s.failures++
		} else {
			s.failures = 0
		}
	}
}

// exhaust reports the all-sources-gone condition exactly once and stops
// re-arming both loops. A new Start is the only way to resume.
func (m *Multiplexer) exhaust() tea.Cmd {
	if m.exhausted {
		return nil
	}
	m.exhausted = true
	m.emit(events.Event{Level: events.LevelWarn, Kind: events.KindExhausted, Comp: "mux"})
	return func() tea.Msg { return SourcesExhaustedMsg{} }
}

func (m *Multiplexer) activeIDs() []string {
	ids := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		if s.state != liveness.NotLive {
			ids = append(ids, s.id)
		}
	}
	return ids
}

func (m *Multiplexer) stampPolled() {
	now := time.Now()
	for _, s := range m.sources {
		if s.state != liveness.NotLive {
			s.lastPolledAt = now
		}
	}
}

func (m *Multiplexer) lookup(id string) *sourceState {
	for _, s := range m.sources {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (m *Multiplexer) emit(e events.Event) {
	if m.trail != nil {
		m.trail.Emit(e)
	}
}

func sourceMentioned(errs []string, id string) bool {
	for _, e := range errs {
		if strings.Contains(e, id) {
			return true
		}
	}
	return false
}
