package sim

import (
	"context"
	"testing"
	"time"
)

var simStart = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

// pin fixes the adapter's clock so polls are reproducible.
func pin(a *Adapter, now time.Time) {
	a.start = simStart
	a.now = func() time.Time { return now }
}

func TestSameSeedSameStream(t *testing.T) {
	x := New("demo", Options{Seed: 7})
	y := New("demo", Options{Seed: 7})
	pin(x, simStart.Add(5*time.Second))
	pin(y, simStart.Add(5*time.Second))

	bx, err := x.FetchContent(context.Background(), time.Time{}, nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	by, _ := y.FetchContent(context.Background(), time.Time{}, nil, 50)

	if len(bx) == 0 || len(bx) != len(by) {
		t.Fatalf("expected equal non-empty batches, got %d and %d", len(bx), len(by))
	}
	for i := range bx {
		if bx[i].ID != by[i].ID || bx[i].Text != by[i].Text || bx[i].Author != by[i].Author {
			t.Errorf("message %d differs: %+v vs %+v", i, bx[i], by[i])
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	x := New("demo", Options{Seed: 1})
	y := New("demo", Options{Seed: 2})
	pin(x, simStart.Add(5*time.Second))
	pin(y, simStart.Add(5*time.Second))

	bx, _ := x.FetchContent(context.Background(), time.Time{}, nil, 50)
	by, _ := y.FetchContent(context.Background(), time.Time{}, nil, 50)

	same := true
	for i := range bx {
		if bx[i].Text != by[i].Text || bx[i].Author != by[i].Author {
			same = false
			break
		}
	}
	if same {
		t.Error("expected seeds 1 and 2 to produce different content")
	}
}

func TestPaginationOldestFirst(t *testing.T) {
	a := New("demo", Options{Seed: 3})
	pin(a, simStart.Add(10*time.Second)) // 26 messages due at 400ms cadence

	got, _ := a.FetchContent(context.Background(), time.Time{}, nil, 5)
	if len(got) != 5 {
		t.Fatalf("expected page of 5, got %d", len(got))
	}
	for i, m := range got {
		want := simStart.Add(time.Duration(i) * 400 * time.Millisecond)
		if !m.OccurredAt.Equal(want) {
			t.Errorf("message %d: expected %v, got %v", i, want, m.OccurredAt)
		}
	}
	if got[0].ID != "demo-0" || got[4].ID != "demo-4" {
		t.Errorf("expected demo-0..demo-4, got %s..%s", got[0].ID, got[4].ID)
	}
}

func TestCursorAdvancesWithOverlap(t *testing.T) {
	a := New("demo", Options{Seed: 3})
	pin(a, simStart.Add(10*time.Second))

	since := simStart.Add(9 * 400 * time.Millisecond) // message 9's timestamp
	got, _ := a.FetchContent(context.Background(), since, nil, 100)

	if len(got) == 0 {
		t.Fatal("expected messages after cursor")
	}
	// Re-reports two behind the cursor.
	if got[0].ID != "demo-7" {
		t.Errorf("expected first message demo-7, got %s", got[0].ID)
	}
}

func TestRecentIDsSkipped(t *testing.T) {
	a := New("demo", Options{Seed: 3})
	pin(a, simStart.Add(10*time.Second))

	since := simStart.Add(9 * 400 * time.Millisecond)
	got, _ := a.FetchContent(context.Background(), since, []string{"demo-7", "demo-8"}, 100)

	if len(got) == 0 || got[0].ID != "demo-9" {
		t.Errorf("expected overlap ids skipped, first got %v", got)
	}
}

func TestLifetimeExpiry(t *testing.T) {
	a := New("demo", Options{Seed: 3, Lifetime: 10 * time.Second})
	pin(a, simStart.Add(11*time.Second))

	if _, err := a.FetchContent(context.Background(), time.Time{}, nil, 10); err == nil {
		t.Error("expected dead-stream error from content poll")
	} else if err.Error() != "not a live video" {
		t.Errorf("expected classifiable phrase, got %q", err)
	}
	if _, err := a.FetchMetadata(context.Background()); err == nil {
		t.Error("expected dead-stream error from metadata poll")
	}
}

func TestMetadataWhileLive(t *testing.T) {
	a := New("demo", Options{Seed: 3, Lifetime: time.Minute})
	pin(a, simStart.Add(10*time.Second))

	meta, err := a.FetchMetadata(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title != "Simulated: demo" {
		t.Errorf("expected title Simulated: demo, got %q", meta.Title)
	}
	if meta.Viewers <= 0 {
		t.Errorf("expected positive viewers, got %d", meta.Viewers)
	}
}

func TestSymbolsAndRolesAppear(t *testing.T) {
	a := New("demo", Options{Seed: 3})
	pin(a, simStart.Add(60*time.Second)) // 151 messages due

	got, _ := a.FetchContent(context.Background(), time.Time{}, nil, 200)

	var withSymbols, nonRegular int
	for _, m := range got {
		if len(m.Symbols) > 0 {
			withSymbols++
			if m.Text == "" || m.Symbols[0].Marker == "" {
				t.Errorf("symbol message malformed: %+v", m)
			}
		}
		if m.Role != "regular" {
			nonRegular++
		}
	}
	if withSymbols == 0 {
		t.Error("expected some messages to carry symbols")
	}
	if nonRegular == 0 {
		t.Error("expected some non-regular roles")
	}
}
