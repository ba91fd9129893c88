// Package window computes which contiguous slice of a long record
// sequence should be materialized for display. It estimates wrapped
// record heights from text length, caches the estimates per index, and
// implements the two scroll disciplines of a live view: pinned to the
// tail, or parked where the user scrolled to.
package window

// DefaultFollowDistance is how many estimated lines of upward scroll a
// pinned window tolerates before it detaches into free scrolling.
const DefaultFollowDistance = 8

// Sequence is the read side of the record timeline a window pages over.
// TextLen reports the display text length of record i so heights can be
// estimated without rendering.
type Sequence interface {
	Len() int
	TextLen(i int) int
}

// Mode is the scroll discipline the window is currently in.
type Mode int

const (
	// Following keeps the window ending at the newest record; inserts
	// shift the visible range so the tail stays on screen.
	Following Mode = iota
	// Free keeps the window anchored where the user left it; only an
	// explicit Resume returns to Following.
	Free
)

func (m Mode) String() string {
	if m == Free {
		return "free"
	}
	return "following"
}

// Slice is a materialized visible range: record indices [Start, End) and
// the estimated line total across them.
type Slice struct {
	Start int
	End   int
	Lines int
}

// Window tracks scroll state and the per-index height cache. Heights are
// estimates (ceil of text length over width), good enough to pick a
// range; the renderer clips the final output. The cache is keyed by
// index, so it is only valid until the sequence is structurally replaced;
// callers pass the sequence's structural version and the cache resets
// whenever it changes.
type Window struct {
	width          int
	height         int
	followDistance int

	mode   Mode
	anchor int // Free: top visible record index
	drift  int // Following: accumulated upward scroll in lines

	heights    map[int]int
	seqVersion uint64
}

// New returns a tail-pinned window for the given text width and height in
// lines. A non-positive followDistance takes the default.
func New(width, height, followDistance int) *Window {
	if followDistance <= 0 {
		followDistance = DefaultFollowDistance
	}
	return &Window{
		width:          width,
		height:         height,
		followDistance: followDistance,
		heights:        make(map[int]int),
	}
}

// Mode returns the current scroll discipline.
func (w *Window) Mode() Mode {
	return w.mode
}

// Width returns the text width heights are estimated against.
func (w *Window) Width() int {
	return w.width
}

// Height returns the window height in lines.
func (w *Window) Height() int {
	return w.height
}

// Resize updates the window dimensions. A width change re-wraps every
// record, so the height cache is dropped.
func (w *Window) Resize(width, height int) {
	if width != w.width {
		w.heights = make(map[int]int)
	}
	w.width = width
	w.height = height
}

// Invalidate drops the height cache without touching scroll state.
func (w *Window) Invalidate() {
	w.heights = make(map[int]int)
}

// Resume reattaches the window to the tail. This is the only way back to
// Following; proximity alone never reattaches.
func (w *Window) Resume() {
	w.mode = Following
	w.drift = 0
}

// Visible computes the current visible slice for the sequence at the
// given structural version.
func (w *Window) Visible(seq Sequence, version uint64) Slice {
	w.sync(seq, version)

	n := seq.Len()
	if n == 0 || w.height <= 0 {
		return Slice{}
	}

	if w.mode == Following {
		return w.tailSlice(seq, n)
	}

	start := w.anchor
	end := start
	lines := 0
	for end < n && lines < w.height {
		lines += w.heightAt(seq, end)
		end++
	}
	// Short tail below the anchor: pull the start up so the screen
	// still fills.
	for start > 0 && lines < w.height {
		start--
		lines += w.heightAt(seq, start)
	}
	return Slice{Start: start, End: end, Lines: lines}
}

// ScrollBy moves the viewport by the given number of estimated lines,
// negative toward older records. While following, upward motion within
// the follow distance keeps the tail pinned; past it the window detaches
// into Free at the scrolled position. Downward motion while following
// resets the accumulated distance.
func (w *Window) ScrollBy(lines int, seq Sequence, version uint64) {
	w.sync(seq, version)

	n := seq.Len()
	if n == 0 {
		w.drift = 0
		return
	}

	if w.mode == Following {
		if lines >= 0 {
			w.drift = 0
			return
		}
		w.drift -= lines
		if w.drift <= w.followDistance {
			return
		}
		tail := w.tailSlice(seq, n)
		if tail.Start == 0 && tail.Lines <= w.height {
			// Everything already fits, nowhere to scroll.
			w.drift = 0
			return
		}
		w.mode = Free
		w.anchor = w.indexAbove(seq, tail.Start, w.drift)
		w.drift = 0
		return
	}

	if lines < 0 {
		w.anchor = w.indexAbove(seq, w.anchor, -lines)
		return
	}
	w.anchor = w.indexBelow(seq, w.anchor, lines, n)
}

// sync adopts a new structural version (dropping the stale height cache)
// and keeps the anchor inside the sequence.
func (w *Window) sync(seq Sequence, version uint64) {
	if version != w.seqVersion {
		w.heights = make(map[int]int)
		w.seqVersion = version
	}
	if n := seq.Len(); w.anchor >= n {
		w.anchor = n - 1
	}
	if w.anchor < 0 {
		w.anchor = 0
	}
}

// tailSlice walks backward from the newest record until the window fills.
func (w *Window) tailSlice(seq Sequence, n int) Slice {
	start := n
	lines := 0
	for start > 0 && lines < w.height {
		start--
		lines += w.heightAt(seq, start)
	}
	return Slice{Start: start, End: n, Lines: lines}
}

// indexAbove walks up from idx consuming budget lines.
func (w *Window) indexAbove(seq Sequence, idx, budget int) int {
	for idx > 0 && budget > 0 {
		idx--
		budget -= w.heightAt(seq, idx)
	}
	return idx
}

// indexBelow walks down from idx consuming budget lines, never past the
// anchor at which the window ends exactly at the tail.
func (w *Window) indexBelow(seq Sequence, idx, budget, n int) int {
	maxAnchor := w.tailSlice(seq, n).Start
	for idx < maxAnchor && budget > 0 {
		budget -= w.heightAt(seq, idx)
		idx++
	}
	if idx > maxAnchor {
		idx = maxAnchor
	}
	return idx
}

// heightAt estimates record i's wrapped height in lines, minimum one.
func (w *Window) heightAt(seq Sequence, i int) int {
	if h, ok := w.heights[i]; ok {
		return h
	}
	cols := w.width
	if cols < 1 {
		cols = 1
	}
	h := (seq.TextLen(i) + cols - 1) / cols
	if h < 1 {
		h = 1
	}
	w.heights[i] = h
	return h
}
