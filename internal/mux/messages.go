package mux

import (
	"time"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/liveness"
)

// Cursor is the duplicate-suppression hint carried by a content fetch:
// the newest merged timestamp plus a bounded sample of recently merged
// ids. Both are best-effort; the merge log's own dedup is authoritative.
type Cursor struct {
	Since     time.Time
	RecentIDs []string
}

// ContentBatch is one content cycle's haul across all polled sources.
// Errors are per-source strings formatted "<sourceID>: <message>";
// partial results are normal.
type ContentBatch struct {
	Events []chat.Message
	Errors []string
}

// SourceRecord is one source's metadata snapshot.
type SourceRecord struct {
	SourceID string
	Title    string
	Viewers  int
}

// MetadataBatch is one metadata cycle's records and per-source errors.
type MetadataBatch struct {
	Records []SourceRecord
	Errors  []string
}

// ContentTickMsg fires a content poll cycle. Gen stamps the run that
// armed it; ticks from a stopped run are discarded unopened.
type ContentTickMsg struct {
	Gen uint64
}

// MetadataTickMsg fires a metadata poll cycle.
type MetadataTickMsg struct {
	Gen uint64
}

// ContentResultMsg carries a content fetch outcome back onto the loop.
type ContentResultMsg struct {
	Gen   uint64
	Batch ContentBatch
	Err   error
}

// MetadataResultMsg carries a metadata fetch outcome back onto the loop.
type MetadataResultMsg struct {
	Gen   uint64
	Batch MetadataBatch
	Err   error
}

// LivenessChangedMsg announces a source's permanent transition out of the
// active set.
type LivenessChangedMsg struct {
	SourceID string
	State    liveness.State
}

// SourcesExhaustedMsg announces that every tracked source has gone
// not-live. Sent once per run; polling stays down until the next Start.
type SourcesExhaustedMsg struct{}
