// Package liveness classifies whether a tracked source should keep being
// polled. Sources start Unknown, become Live on their first successful
// poll, and become NotLive only when upstream definitively says the stream
// is over or never existed. Transient failures never change liveness.
package liveness

// State is a source's polling classification
type State int

const (
	Unknown State = iota
	Live
	NotLive
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case NotLive:
		return "not-live"
	default:
		return "unknown"
	}
}
