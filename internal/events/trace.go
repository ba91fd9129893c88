package events

import (
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init. Atomic so the UI goroutine
// can read it while tests flip it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("CHATLOOM_TRACE") != "")
}

// TraceEnabled reports whether CHATLOOM_TRACE is set. Message-loop trace
// events are only emitted when it is.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the flag for testing.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
