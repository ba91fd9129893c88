package sources

import (
	"testing"

	"github.com/nerrida/chatloom/internal/config"
)

func TestBuildAllKinds(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{ID: "demo", Kind: config.KindSim, Seed: 7},
		{ID: "abc123", Kind: config.KindRelay},
		{ID: "somechannel", Kind: config.KindTwitch},
		{ID: "room1", Kind: config.KindWSRelay, URL: "ws://127.0.0.1:8178/v1/rooms"},
	}

	adapters, err := Build(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adapters) != 4 {
		t.Fatalf("expected 4 adapters, got %d", len(adapters))
	}

	want := []string{"demo", "abc123", "somechannel", "room1"}
	for i, id := range want {
		if adapters[i].ID() != id {
			t.Errorf("adapter %d: expected id %q, got %q", i, id, adapters[i].ID())
		}
	}

	// None of these dialed anything yet; closing must be safe.
	CloseAll(adapters)
}

func TestBuildUnknownKind(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{ID: "x", Kind: "smoke-signal"}}

	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}
