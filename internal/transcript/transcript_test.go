package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrida/chatloom/internal/chat"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func msg(id, source string, at time.Time) chat.Message {
	return chat.Message{
		ID:         id,
		SourceID:   source,
		Author:     chat.Author{Name: "ana", ID: "u1"},
		Role:       chat.RoleRegular,
		Text:       "text for " + id,
		OccurredAt: at,
		ReceivedAt: at,
	}
}

var rec0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "transcripts.db")

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	r := newTestRecorder(t)

	id, err := r.BeginSession([]string{"alpha", "bravo"})
	if err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	if id == "" || r.SessionID() != id {
		t.Fatalf("expected current session %q", id)
	}

	full := msg("m2", "alpha", rec0.Add(2*time.Second))
	full.Role = chat.RoleModerator
	full.Symbols = []chat.Symbol{{Marker: ":wave:", Image: "https://img/wave.png", Label: "wave"}}

	// Insert out of order; read-back sorts by occurrence.
	saved, err := r.SaveMessages([]chat.Message{
		full,
		msg("m1", "bravo", rec0.Add(time.Second)),
		msg("m3", "alpha", rec0.Add(3*time.Second)),
	})
	if err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}
	if saved != 3 {
		t.Errorf("expected 3 saved, got %d", saved)
	}

	got, err := r.SessionMessages(id, 0)
	if err != nil {
		t.Fatalf("SessionMessages failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" || got[2].ID != "m3" {
		t.Errorf("expected m1,m2,m3 by occurrence, got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}

	back := got[1]
	if back.Role != chat.RoleModerator {
		t.Errorf("expected moderator, got %v", back.Role)
	}
	if back.Author.Name != "ana" || back.Author.ID != "u1" {
		t.Errorf("unexpected author: %+v", back.Author)
	}
	if len(back.Symbols) != 1 || back.Symbols[0].Marker != ":wave:" {
		t.Errorf("symbols did not round-trip: %+v", back.Symbols)
	}
	if !back.OccurredAt.Equal(rec0.Add(2 * time.Second)) {
		t.Errorf("unexpected occurred_at: %v", back.OccurredAt)
	}
}

func TestSaveIsIdempotentPerSession(t *testing.T) {
	r := newTestRecorder(t)
	id, _ := r.BeginSession([]string{"alpha"})

	batch := []chat.Message{msg("m1", "alpha", rec0), msg("m2", "alpha", rec0.Add(time.Second))}
	if saved, _ := r.SaveMessages(batch); saved != 2 {
		t.Fatalf("expected 2 saved first time, got %d", saved)
	}
	if saved, _ := r.SaveMessages(batch); saved != 0 {
		t.Errorf("expected 0 saved on re-save, got %d", saved)
	}

	got, _ := r.SessionMessages(id, 0)
	if len(got) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got))
	}
}

func TestQueueAndFlush(t *testing.T) {
	r := newTestRecorder(t)
	id, _ := r.BeginSession([]string{"alpha"})

	r.Queue([]chat.Message{msg("m1", "alpha", rec0)})
	r.Queue([]chat.Message{msg("m2", "alpha", rec0.Add(time.Second)), msg("m3", "alpha", rec0.Add(2*time.Second))})
	if n := r.PendingCount(); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}

	saved, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if saved != 3 || r.PendingCount() != 0 {
		t.Errorf("expected 3 saved and empty queue, got %d / %d", saved, r.PendingCount())
	}

	if saved, _ := r.Flush(); saved != 0 {
		t.Errorf("expected empty flush to save 0, got %d", saved)
	}

	got, _ := r.SessionMessages(id, 2)
	if len(got) != 2 {
		t.Errorf("expected limit respected, got %d", len(got))
	}
}

func TestEndSessionStampsAndCounts(t *testing.T) {
	r := newTestRecorder(t)
	id, _ := r.BeginSession([]string{"alpha", "bravo"})

	r.Queue([]chat.Message{msg("m1", "alpha", rec0), msg("m2", "bravo", rec0.Add(time.Second))})
	if err := r.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if r.SessionID() != "" {
		t.Error("expected session cleared")
	}

	sessions, err := r.RecentSessions(5)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.ID != id {
		t.Errorf("expected session %s, got %s", id, s.ID)
	}
	if s.EndedAt.IsZero() {
		t.Error("expected ended_at set")
	}
	if s.MessageCount != 2 {
		t.Errorf("expected 2 messages counted, got %d", s.MessageCount)
	}
	if len(s.Sources) != 2 || s.Sources[0] != "alpha" {
		t.Errorf("expected sources [alpha bravo], got %v", s.Sources)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	r := newTestRecorder(t)

	first, _ := r.BeginSession([]string{"alpha"})
	r.SaveMessages([]chat.Message{msg("m1", "alpha", rec0)})
	r.EndSession()

	second, _ := r.BeginSession([]string{"alpha"})
	if saved, _ := r.SaveMessages([]chat.Message{msg("m1", "alpha", rec0)}); saved != 1 {
		t.Errorf("same id in a new session should insert, got %d", saved)
	}

	a, _ := r.SessionMessages(first, 0)
	b, _ := r.SessionMessages(second, 0)
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("expected 1 row each, got %d and %d", len(a), len(b))
	}
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	r := newTestRecorder(t)

	r.BeginSession([]string{"one"})
	r.EndSession()
	time.Sleep(5 * time.Millisecond) // distinct started_at
	latest, _ := r.BeginSession([]string{"two"})

	sessions, _ := r.RecentSessions(5)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != latest {
		t.Errorf("expected newest first, got %s", sessions[0].ID)
	}
	if !sessions[0].EndedAt.IsZero() {
		t.Error("open session should have zero EndedAt")
	}
}

func TestFlushWithoutSession(t *testing.T) {
	r := newTestRecorder(t)
	r.Queue([]chat.Message{msg("m1", "alpha", rec0)})

	if _, err := r.Flush(); err == nil {
		t.Error("expected error flushing without a session")
	}
}
