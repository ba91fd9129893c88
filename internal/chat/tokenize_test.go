package chat

import (
	"testing"
)

func TestTokenizeNoSymbols(t *testing.T) {
	text := "hello world, no emotes here"

	segs := Tokenize(text, nil)

	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Kind != SegmentText {
		t.Errorf("expected text segment, got %v", segs[0].Kind)
	}
	if segs[0].Text != text {
		t.Errorf("expected %q, got %q", text, segs[0].Text)
	}
}

func TestTokenizeEmptyText(t *testing.T) {
	segs := Tokenize("", []Symbol{{Marker: ":wave:"}})
	if len(segs) != 0 {
		t.Errorf("expected no segments for empty text, got %d", len(segs))
	}
}

func TestTokenizeRepeatedMarkerSequenceNumbers(t *testing.T) {
	sym := Symbol{Marker: ":wave:", Image: "https://example.com/wave.png", Label: "wave"}

	segs := Tokenize(":wave::wave:", []Symbol{sym})

	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Kind != SegmentSymbol {
			t.Errorf("segment %d: expected symbol, got %v", i, s.Kind)
		}
		if s.Seq != i {
			t.Errorf("segment %d: expected seq %d, got %d", i, i, s.Seq)
		}
		if s.Symbol.Image != sym.Image {
			t.Errorf("segment %d: symbol metadata not carried through", i)
		}
	}
	if segs[0].RenderKey() == segs[1].RenderKey() {
		t.Errorf("occurrences must have distinct render keys, both %q", segs[0].RenderKey())
	}
}

func TestTokenizeMixedTextAndSymbols(t *testing.T) {
	symbols := []Symbol{
		{Marker: ":lol:", Label: "lol"},
		{Marker: ":wave:", Label: "wave"},
	}

	segs := Tokenize("hi :wave: that was :lol: honestly :lol:", symbols)

	want := []struct {
		kind SegmentKind
		text string
		seq  int
	}{
		{SegmentText, "hi ", 0},
		{SegmentSymbol, ":wave:", 0},
		{SegmentText, " that was ", 0},
		{SegmentSymbol, ":lol:", 0},
		{SegmentText, " honestly ", 0},
		{SegmentSymbol, ":lol:", 1},
	}

	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(segs), segs)
	}
	for i, w := range want {
		if segs[i].Kind != w.kind {
			t.Errorf("segment %d: expected kind %v, got %v", i, w.kind, segs[i].Kind)
		}
		if segs[i].Text != w.text {
			t.Errorf("segment %d: expected text %q, got %q", i, w.text, segs[i].Text)
		}
		if segs[i].Kind == SegmentSymbol && segs[i].Seq != w.seq {
			t.Errorf("segment %d: expected seq %d, got %d", i, w.seq, segs[i].Seq)
		}
	}
}

func TestTokenizeMarkerInsidePlainText(t *testing.T) {
	// Raw substring matching: a marker that happens to appear inside
	// ordinary text still matches. Upstream format limitation.
	segs := Tokenize("catnap", []Symbol{{Marker: "cat", Label: "cat"}})

	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Kind != SegmentSymbol || segs[0].Text != "cat" {
		t.Errorf("expected leading symbol match, got %+v", segs[0])
	}
	if segs[1].Kind != SegmentText || segs[1].Text != "nap" {
		t.Errorf("expected trailing text %q, got %+v", "nap", segs[1])
	}
}

func TestTokenizeUnicodeText(t *testing.T) {
	segs := Tokenize("héllo :wave: wörld", []Symbol{{Marker: ":wave:"}})

	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[0].Text != "héllo " {
		t.Errorf("unexpected leading run %q", segs[0].Text)
	}
	if segs[2].Text != " wörld" {
		t.Errorf("unexpected trailing run %q", segs[2].Text)
	}
}

func TestTokenizeDuplicateSymbolDeclarations(t *testing.T) {
	symbols := []Symbol{
		{Marker: ":wave:", Label: "first"},
		{Marker: ":wave:", Label: "second"},
	}

	segs := Tokenize(":wave:", symbols)

	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Symbol.Label != "first" {
		t.Errorf("first declaration should win, got label %q", segs[0].Symbol.Label)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	symbols := []Symbol{
		{Marker: "Kappa"},
		{Marker: "PogChamp"},
	}

	tests := []string{
		"",
		"plain text only",
		"Kappa",
		"KappaKappa",
		"leading Kappa middle PogChamp trailing",
		"PogChampKappa back to back",
	}

	for _, text := range tests {
		segs := Tokenize(text, symbols)
		if got := Flatten(segs); got != text {
			t.Errorf("Flatten(Tokenize(%q)) = %q, want original", text, got)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in       string
		expected Role
	}{
		{"", RoleRegular},
		{"regular", RoleRegular},
		{"member", RoleMember},
		{"moderator", RoleModerator},
		{"owner", RoleOwner},
		{"admin", RoleRegular},
	}

	for _, tc := range tests {
		if got := ParseRole(tc.in); got != tc.expected {
			t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.expected)
		}
	}
}

func TestGenerateIDDeterministic(t *testing.T) {
	m := Message{SourceID: "src", Author: Author{ID: "u1"}, Text: "hello"}

	a := GenerateID(m.SourceID, m.Author.ID, m.Text, m.OccurredAt)
	b := GenerateID(m.SourceID, m.Author.ID, m.Text, m.OccurredAt)
	if a != b {
		t.Errorf("ids should be deterministic: %q vs %q", a, b)
	}

	c := GenerateID(m.SourceID, m.Author.ID, "different", m.OccurredAt)
	if a == c {
		t.Error("different text should produce a different id")
	}
}
