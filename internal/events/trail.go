package events

// Goroutine safety:
// The drain goroutine is the sole reader of t.ch and the sole writer to t.w.
// Trail.mu protects only the t.ring pointer (read by drain, written by
// SetRing). The ring's own mu handles concurrent Push/Snapshot/Last calls.
// No nested lock acquisition occurs: drain releases Trail.mu before Push.

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// trailChanSize is the capacity of the async write channel. At ~200
// bytes per event, 4096 events buffers ~800KB.
const trailChanSize = 4096

// trailEntry carries both serialized bytes (for disk) and the original
// Event (for the ring). This avoids a lossy JSON round-trip: fields like
// Dur (json:"-") survive in the ring copy.
type trailEntry struct {
	data []byte
	ev   Event
}

// Trail serializes events as JSONL via an async background writer.
// Goroutine-safe. All emitted events flow through a buffered channel to
// a drain goroutine that writes to disk and pushes to the ring.
type Trail struct {
	mu        sync.Mutex
	ring      *Ring // nil until SetRing
	runID     string
	ch        chan trailEntry
	w         io.Writer
	dropped   atomic.Uint64 // events dropped: full channel, encode failure, write error
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewTrail creates a Trail writing JSONL to w asynchronously. Starts a
// background drain goroutine. Call Close to flush and stop.
func NewTrail(w io.Writer) *Trail {
	var rid [8]byte
	_, _ = rand.Read(rid[:])

	t := &Trail{
		runID: fmt.Sprintf("%x", rid[:]),
		ch:    make(chan trailEntry, trailChanSize),
		w:     w,
		done:  make(chan struct{}),
	}
	go t.drain()
	return t
}

// NewNullTrail creates a Trail that discards output. Callers should
// still Close it to stop the drain goroutine.
func NewNullTrail() *Trail {
	return NewTrail(io.Discard)
}

func (t *Trail) drain() {
	defer close(t.done)
	for entry := range t.ch {
		if _, err := t.w.Write(entry.data); err != nil {
			t.dropped.Add(1)
		}

		t.mu.Lock()
		r := t.ring
		t.mu.Unlock()

		if r != nil {
			r.Push(entry.ev)
		}
	}
}

// Emit writes an event to the JSONL trail (and ring if attached). Sets
// Time (if zero) and RunID. Goroutine-safe. Non-blocking: if the channel
// is full or the trail is closed, the event is dropped and counted.
//
// Safe to call concurrently with Close. If Close races between the
// closed-flag check and the channel send, the resulting panic is
// recovered and the event counted as dropped.
func (t *Trail) Emit(e Event) {
	defer func() {
		if recover() != nil {
			t.dropped.Add(1)
		}
	}()

	if t.closed.Load() {
		t.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.RunID = t.runID

	data, err := json.Marshal(e)
	if err != nil {
		t.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case t.ch <- trailEntry{data: data, ev: e}:
	default:
		t.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (t *Trail) Info(kind Kind, comp string, msg string) {
	t.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Warn emits a warn-level event.
func (t *Trail) Warn(kind Kind, comp string, msg string) {
	t.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe.
func (t *Trail) Error(kind Kind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	t.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// SetRing attaches a ring for live inspection.
func (t *Trail) SetRing(r *Ring) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring = r
}

// RunID returns the random identifier stamped on every event this trail
// emits.
func (t *Trail) RunID() string {
	return t.runID
}

// Dropped returns the number of events dropped since creation.
func (t *Trail) Dropped() uint64 {
	return t.dropped.Load()
}

// Close flushes pending events, stops the drain goroutine, and reports
// drops to stderr. Safe to call while other goroutines still Emit; those
// calls are dropped, not panicked.
func (t *Trail) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.ch)
		<-t.done

		if d := t.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "chatloom: %d trail events dropped during run %s\n", d, t.runID)
		}
	})
}
