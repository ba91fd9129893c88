package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SegmentKind distinguishes plain text runs from symbol references
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentSymbol
)

// Segment is one renderable piece of a tokenized message: either a text
// run or a reference to an inline symbol. Symbol segments carry Seq, the
// zero-based occurrence number of that marker within the message, so each
// occurrence has a distinct render key.
type Segment struct {
	Kind   SegmentKind
	Text   string // run content, or the marker text for symbol segments
	Symbol Symbol
	Seq    int
}

// RenderKey returns a key unique per symbol occurrence within one message.
func (s Segment) RenderKey() string {
	if s.Kind != SegmentSymbol {
		return ""
	}
	return fmt.Sprintf("%s#%d", s.Symbol.Marker, s.Seq)
}

// Tokenize splits text into an ordered sequence of text runs and symbol
// references. Markers are matched as exact substrings at each scan
// position, tried in declaration order; a marker that also occurs as
// ordinary text will match. That ambiguity is inherited from the upstream
// format and is left as is.
func Tokenize(text string, symbols []Symbol) []Segment {
	if text == "" {
		return nil
	}

	markers := usableSymbols(symbols)
	if len(markers) == 0 {
		return []Segment{{Kind: SegmentText, Text: text}}
	}

	var (
		segs     []Segment
		runStart = 0
		seen     = make(map[string]int, len(markers))
	)

	i := 0
	for i < len(text) {
		matched := false
		for _, sym := range markers {
			if strings.HasPrefix(text[i:], sym.Marker) {
				if runStart < i {
					segs = append(segs, Segment{Kind: SegmentText, Text: text[runStart:i]})
				}
				seq := seen[sym.Marker]
				seen[sym.Marker] = seq + 1
				segs = append(segs, Segment{Kind: SegmentSymbol, Text: sym.Marker, Symbol: sym, Seq: seq})
				i += len(sym.Marker)
				runStart = i
				matched = true
				break
			}
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
		}
	}

	if runStart < len(text) {
		segs = append(segs, Segment{Kind: SegmentText, Text: text[runStart:]})
	}

	return segs
}

// Flatten reassembles the original message text from its segments.
func Flatten(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

// usableSymbols drops symbols with empty markers and collapses duplicate
// markers to their first declaration.
func usableSymbols(symbols []Symbol) []Symbol {
	if len(symbols) == 0 {
		return nil
	}
	out := make([]Symbol, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s.Marker == "" || seen[s.Marker] {
			continue
		}
		seen[s.Marker] = true
		out = append(out, s)
	}
	return out
}
