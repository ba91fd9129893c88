package window

import "testing"

type fakeSeq struct {
	lens []int
}

func (s *fakeSeq) Len() int          { return len(s.lens) }
func (s *fakeSeq) TextLen(i int) int { return s.lens[i] }

func uniform(n, textLen int) *fakeSeq {
	lens := make([]int, n)
	for i := range lens {
		lens[i] = textLen
	}
	return &fakeSeq{lens: lens}
}

func TestFollowingPinsTail(t *testing.T) {
	w := New(80, 5, 8)
	seq := uniform(10, 10) // one line each

	got := w.Visible(seq, 0)
	if got.Start != 5 || got.End != 10 {
		t.Fatalf("expected [5,10), got [%d,%d)", got.Start, got.End)
	}

	// One insert at the tail shifts the range by one, same capacity.
	seq.lens = append(seq.lens, 10)
	got = w.Visible(seq, 0)
	if got.Start != 6 || got.End != 11 {
		t.Errorf("after insert expected [6,11), got [%d,%d)", got.Start, got.End)
	}
	if got.End-got.Start != 5 {
		t.Errorf("capacity should be preserved, got %d records", got.End-got.Start)
	}
}

func TestScrollWithinFollowDistanceStaysPinned(t *testing.T) {
	w := New(80, 5, 8)
	seq := uniform(10, 10)

	w.ScrollBy(-3, seq, 0)
	if w.Mode() != Following {
		t.Fatalf("3 lines up should stay following, mode %v", w.Mode())
	}
	if got := w.Visible(seq, 0); got.End != 10 {
		t.Errorf("still pinned, expected end 10, got %d", got.End)
	}

	w.ScrollBy(-3, seq, 0)
	if w.Mode() != Following {
		t.Fatalf("6 lines up should stay following, mode %v", w.Mode())
	}

	w.ScrollBy(-3, seq, 0)
	if w.Mode() != Free {
		t.Fatalf("9 lines up should detach, mode %v", w.Mode())
	}
	if got := w.Visible(seq, 0); got.Start != 0 || got.End != 5 {
		t.Errorf("detached window should sit 9 lines up, got [%d,%d)", got.Start, got.End)
	}
}

func TestDownwardScrollResetsFollowDrift(t *testing.T) {
	w := New(80, 5, 8)
	seq := uniform(10, 10)

	w.ScrollBy(-5, seq, 0)
	w.ScrollBy(2, seq, 0)
	w.ScrollBy(-5, seq, 0)

	if w.Mode() != Following {
		t.Errorf("drift should reset on downward scroll, mode %v", w.Mode())
	}
}

func TestFreeHoldsPositionAcrossInserts(t *testing.T) {
	w := New(80, 5, 2)
	seq := uniform(30, 10)

	w.ScrollBy(-10, seq, 0)
	if w.Mode() != Free {
		t.Fatalf("expected free mode, got %v", w.Mode())
	}
	before := w.Visible(seq, 0)
	if before.Start != 15 || before.End != 20 {
		t.Fatalf("expected [15,20), got [%d,%d)", before.Start, before.End)
	}

	// Tail growth must not move a detached window.
	seq.lens = append(seq.lens, 10, 10, 10, 10, 10)
	after := w.Visible(seq, 0)
	if after != before {
		t.Errorf("inserts moved a free window: %+v -> %+v", before, after)
	}
}

func TestResumeReattaches(t *testing.T) {
	w := New(80, 5, 2)
	seq := uniform(30, 10)

	w.ScrollBy(-10, seq, 0)
	if w.Mode() != Free {
		t.Fatalf("setup: expected free mode")
	}

	w.Resume()
	if w.Mode() != Following {
		t.Fatalf("resume should reattach, mode %v", w.Mode())
	}
	if got := w.Visible(seq, 0); got.End != 30 {
		t.Errorf("resumed window should end at tail, got end %d", got.End)
	}
}

func TestTallRecordHeights(t *testing.T) {
	w := New(10, 4, 8)
	seq := &fakeSeq{lens: []int{25, 5}} // heights 3 and 1

	got := w.Visible(seq, 0)
	if got.Start != 0 || got.End != 2 {
		t.Errorf("expected [0,2), got [%d,%d)", got.Start, got.End)
	}
	if got.Lines != 4 {
		t.Errorf("expected 4 estimated lines, got %d", got.Lines)
	}
}

func TestVersionChangeDropsHeightCache(t *testing.T) {
	w := New(10, 3, 8)
	seq := &fakeSeq{lens: []int{5, 5, 5}}

	if got := w.Visible(seq, 0); got.Lines != 3 {
		t.Fatalf("expected 3 lines, got %d", got.Lines)
	}

	// Same version: indices are a valid cache key, the stale estimate
	// is used on purpose.
	seq.lens[0] = 25
	if got := w.Visible(seq, 0); got.Lines != 3 {
		t.Errorf("same version should reuse cached heights, got %d lines", got.Lines)
	}

	if got := w.Visible(seq, 1); got.Lines != 5 {
		t.Errorf("new version should re-estimate, got %d lines", got.Lines)
	}
}

func TestResizeWidthDropsHeightCache(t *testing.T) {
	w := New(10, 3, 8)
	seq := &fakeSeq{lens: []int{5, 5, 5}}
	w.Visible(seq, 0)

	seq.lens[0] = 25
	w.Resize(12, 3)

	if got := w.Visible(seq, 0); got.Lines != 5 {
		t.Errorf("width change should re-estimate heights, got %d lines", got.Lines)
	}
}

func TestAnchorClampsWhenSequenceShrinks(t *testing.T) {
	w := New(80, 2, 2)
	seq := uniform(10, 10)

	w.ScrollBy(-5, seq, 0)
	if w.Mode() != Free {
		t.Fatalf("setup: expected free mode")
	}

	// Structural replacement with a much shorter sequence.
	short := uniform(2, 10)
	got := w.Visible(short, 1)
	if got.Start != 0 || got.End != 2 {
		t.Errorf("expected clamped [0,2), got [%d,%d)", got.Start, got.End)
	}
}

func TestFreeScrollClampsAtTail(t *testing.T) {
	w := New(80, 3, 2)
	seq := uniform(20, 10)

	w.ScrollBy(-9, seq, 0)
	if w.Mode() != Free {
		t.Fatalf("setup: expected free mode")
	}

	w.ScrollBy(100, seq, 0)
	got := w.Visible(seq, 0)
	if got.Start != 17 || got.End != 20 {
		t.Errorf("expected tail window [17,20), got [%d,%d)", got.Start, got.End)
	}
	if w.Mode() != Free {
		t.Errorf("reaching the tail must not reattach, mode %v", w.Mode())
	}
}

func TestEmptySequence(t *testing.T) {
	w := New(80, 5, 8)
	seq := &fakeSeq{}

	if got := w.Visible(seq, 0); got != (Slice{}) {
		t.Errorf("expected zero slice, got %+v", got)
	}
	w.ScrollBy(-5, seq, 0) // must not panic
}

func TestShortLogStaysFollowing(t *testing.T) {
	w := New(80, 10, 2)
	seq := uniform(3, 10)

	w.ScrollBy(-5, seq, 0)
	if w.Mode() != Following {
		t.Errorf("nothing to scroll to, should stay following, mode %v", w.Mode())
	}
}
