// Package mergelog holds the merged chat timeline: one deduplicated,
// chronologically ordered, memory-bounded sequence of messages from every
// tracked source.
package mergelog

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrida/chatloom/internal/chat"
)

const (
	// DefaultPruneThreshold is the log size that triggers compaction.
	DefaultPruneThreshold = 4000
	// DefaultPruneTarget is the size kept after compaction.
	DefaultPruneTarget = 3000
)

// InsertStats summarizes one insert cycle.
type InsertStats struct {
	Added      int // messages newly inserted
	Duplicates int // messages dropped because their id was already present
	Fallbacks  int // messages whose timestamp was replaced with receipt time
	Pruned     int // messages evicted by this cycle's compaction
}

// Log is the bounded merge log. Every InsertBatch call is a complete
// insert cycle: dedup, normalize, re-sort, and prune if over threshold.
// After any call the sequence is sorted by OccurredAt ascending, equal
// timestamps keeping insertion order, and len <= max(threshold, target).
type Log struct {
	mu             sync.RWMutex
	items          []chat.Message
	index          map[string]struct{}
	pruneThreshold int
	pruneTarget    int
	version        uint64
	prunedTotal    uint64
}

// New creates a log with the given bounds. Non-positive bounds fall back
// to the defaults.
func New(pruneThreshold, pruneTarget int) *Log {
	if pruneThreshold <= 0 {
		pruneThreshold = DefaultPruneThreshold
	}
	if pruneTarget <= 0 {
		pruneTarget = DefaultPruneTarget
	}
	return &Log{
		items: make([]chat.Message, 0),
		index: make(map[string]struct{}),

		pruneThreshold: pruneThreshold,
		pruneTarget:    pruneTarget,
	}
}

// InsertBatch absorbs one batch from a source. Messages whose id is already
// in the log are dropped, not overwritten, so the first-seen normalized
// version wins. Missing fields are normalized on the way in: empty role
// becomes regular, a zero OccurredAt becomes the receipt time (content is
// never rejected for a bad timestamp), empty SourceID takes the batch's,
// and a missing id gets a deterministic content hash. Returns the messages
// actually inserted, in their normalized form.
func (l *Log) InsertBatch(sourceID string, events []chat.Message) ([]chat.Message, InsertStats) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats InsertStats
	if len(events) == 0 {
		return nil, stats
	}

	received := time.Now()
	added := make([]chat.Message, 0, len(events))

	var prevNewest time.Time
	hadItems := len(l.items) > 0
	if hadItems {
		prevNewest = l.items[len(l.items)-1].OccurredAt
	}

	for _, e := range events {
		if e.SourceID == "" {
			e.SourceID = sourceID
		}
		if e.ID == "" {
			e.ID = chat.GenerateID(e.SourceID, e.Author.ID, e.Text, e.OccurredAt)
		}
		if _, dup := l.index[e.ID]; dup {
			stats.Duplicates++
			continue
		}
		if e.Role == "" {
			e.Role = chat.RoleRegular
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = received
			stats.Fallbacks++
		}
		e.ReceivedAt = received

		l.index[e.ID] = struct{}{}
		l.items = append(l.items, e)
		added = append(added, e)
		stats.Added++
	}

	if stats.Added > 0 {
		// Stable sort keeps insertion order as the tie-break for equal
		// timestamps, so repeat runs produce identical sequences.
		sort.SliceStable(l.items, func(i, j int) bool {
			return l.items[i].OccurredAt.Before(l.items[j].OccurredAt)
		})
		// An insert older than the previous newest sorts into the middle
		// and shifts every index after it.
		for _, m := range added {
			if hadItems && m.OccurredAt.Before(prevNewest) {
				l.version++
				break
			}
		}
		stats.Pruned = l.pruneLocked()
	}

	return added, stats
}

// pruneLocked retains only the newest pruneTarget messages once the log
// grows past pruneThreshold. Evicted messages vanish silently, identity
// index included, keeping the whole structure memory-bounded.
func (l *Log) pruneLocked() int {
	if len(l.items) <= l.pruneThreshold || len(l.items) <= l.pruneTarget {
		return 0
	}

	cut := len(l.items) - l.pruneTarget
	kept := make([]chat.Message, l.pruneTarget)
	copy(kept, l.items[cut:])
	l.items = kept

	l.index = make(map[string]struct{}, len(l.items))
	for _, m := range l.items {
		l.index[m.ID] = struct{}{}
	}

	l.version++
	l.prunedTotal += uint64(cut)
	return cut
}

// Items returns a copy of the merged sequence, oldest first.
func (l *Log) Items() []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := make([]chat.Message, len(l.items))
	copy(items, l.items)
	return items
}

// Len returns the current sequence length.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Newest returns the most recent message, if any.
func (l *Log) Newest() (chat.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.items) == 0 {
		return chat.Message{}, false
	}
	return l.items[len(l.items)-1], true
}

// RecentIDs returns the ids of the newest n messages, oldest of them
// first. This is the bounded duplicate-suppression hint handed to the
// fetch collaborator; correctness does not depend on it.
func (l *Log) RecentIDs(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.items) == 0 {
		return nil
	}
	if n > len(l.items) {
		n = len(l.items)
	}
	ids := make([]string, 0, n)
	for _, m := range l.items[len(l.items)-n:] {
		ids = append(ids, m.ID)
	}
	return ids
}

// Version increments every time the structure changes under existing
// indices: an insert landing before the previous newest message, a prune,
// or a Reset. Tail appends keep the version. Consumers caching by index
// compare against it.
func (l *Log) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// PrunedTotal returns how many messages have been evicted over the log's
// lifetime.
func (l *Log) PrunedTotal() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prunedTotal
}

// Bounds returns the configured prune threshold and target.
func (l *Log) Bounds() (threshold, target int) {
	return l.pruneThreshold, l.pruneTarget
}

// Reset drops everything, for a fresh session. Counts as a structural
// change.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = l.items[:0]
	l.index = make(map[string]struct{})
	l.version++
}
