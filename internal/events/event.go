// Package events provides the structured activity trail for chatloom.
//
// Events are typed structs serialized as JSONL lines. The Trail writes
// events asynchronously via a buffered channel and background drain
// goroutine. An optional Ring keeps recent events in memory for the
// debug overlay.
package events

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Kind identifies the category of an event. Dot-delimited:
// "<subsystem>.<action>".
type Kind string

const (
	// Polling loop events
	KindPollStart    Kind = "poll.start"
	KindPollComplete Kind = "poll.complete"
	KindPollSkip     Kind = "poll.skip"
	KindPollError    Kind = "poll.error"

	// Merge log events
	KindMergeBatch Kind = "merge.batch"
	KindMergePrune Kind = "merge.prune"

	// Liveness events
	KindLivenessChange Kind = "liveness.change"
	KindExhausted      Kind = "liveness.exhausted"

	// Viewport events
	KindWindowDetach Kind = "window.detach"
	KindWindowResume Kind = "window.resume"

	// Transcript events
	KindRecordFlush Kind = "record.flush"
	KindRecordError Kind = "record.error"

	// UI events
	KindKeyPress Kind = "ui.key"

	// System events
	KindStartup  Kind = "sys.startup"
	KindShutdown Kind = "sys.shutdown"
	KindError    Kind = "sys.error"

	// Trace events (message-loop tracing, gated by CHATLOOM_TRACE)
	KindMsgReceived Kind = "trace.msg_received"
	KindMsgHandled  Kind = "trace.msg_handled"
)

// Event is the universal trail record. Every field except Kind and Time
// is optional. Serialized as a single JSONL line.
type Event struct {
	Time   time.Time     `json:"t"`
	Level  Level         `json:"level,omitempty"`
	Kind   Kind          `json:"kind"`
	Comp   string        `json:"comp,omitempty"`   // component: "mux", "fetch", "ui", "main"
	RunID  string        `json:"run_id,omitempty"` // random hex, same for the entire app run
	Loop   string        `json:"loop,omitempty"`   // polling loop: "content" or "metadata"
	Source string        `json:"source,omitempty"`
	State  string        `json:"state,omitempty"` // liveness state after a transition
	Dur    time.Duration `json:"-"`               // not serialized directly
	DurMs  float64       `json:"dur_ms,omitempty"`
	Count  int           `json:"count,omitempty"`
	Added  int           `json:"added,omitempty"`
	Dups   int           `json:"dups,omitempty"`
	Pruned int           `json:"pruned,omitempty"`
	Err    string        `json:"err,omitempty"`
	Msg    string        `json:"msg,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
