package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nerrida/chatloom/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// eventRecord mirrors events.Event for JSON decoding. Decoding from JSONL
// rather than importing the package keeps this subcommand usable against
// trails written by older builds.
type eventRecord struct {
	Time   time.Time      `json:"t"`
	Level  string         `json:"level"`
	Kind   string         `json:"kind"`
	Comp   string         `json:"comp"`
	RunID  string         `json:"run_id"`
	Loop   string         `json:"loop"`
	Source string         `json:"source"`
	State  string         `json:"state"`
	DurMs  float64        `json:"dur_ms"`
	Count  int            `json:"count"`
	Added  int            `json:"added"`
	Dups   int            `json:"dups"`
	Pruned int            `json:"pruned"`
	Err    string         `json:"err"`
	Msg    string         `json:"msg"`
	Extra  map[string]any `json:"extra"`
}

func levelRank(level string) int {
	switch level {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

// defaultEventsPath is today's conventional trail location.
func defaultEventsPath() string {
	name := fmt.Sprintf("events-%s.jsonl", time.Now().Format("2006-01-02"))
	return filepath.Join(config.StateDir(), name)
}

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	path := fs.String("path", defaultEventsPath(), "events JSONL file")
	tail := fs.Int("tail", 50, "number of recent lines to show")
	follow := fs.Bool("f", false, "follow mode (like tail -f)")
	kind := fs.String("kind", "", "filter by event kind prefix (e.g. 'poll')")
	level := fs.String("level", "", "minimum level: debug, info, warn, error")
	comp := fs.String("comp", "", "filter by component name")
	source := fs.String("source", "", "filter by source id")
	run := fs.String("run", "", "filter by run id")
	rawJSON := fs.Bool("json", false, "output raw JSON lines")
	fs.Parse(os.Args[1:])

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Event trail not found at %s\n", *path)
		fmt.Fprintf(os.Stderr, "  Set events_path in the config to enable it.\n")
		os.Exit(1)
	}
	defer f.Close()

	minLevel := levelRank(*level)

	matchFn := func(ev eventRecord) bool {
		if *kind != "" && !strings.HasPrefix(ev.Kind, *kind) {
			return false
		}
		if *level != "" && levelRank(ev.Level) < minLevel {
			return false
		}
		if *comp != "" && ev.Comp != *comp {
			return false
		}
		if *source != "" && ev.Source != *source {
			return false
		}
		if *run != "" && ev.RunID != *run {
			return false
		}
		return true
	}

	formatFn := func(ev eventRecord, raw []byte) string {
		if *rawJSON {
			return string(raw)
		}
		ts := ev.Time.Format("15:04:05.000")
		lvl := strings.ToUpper(ev.Level)
		if lvl == "" {
			lvl = "?"
		}

		parts := []string{fmt.Sprintf("%s %-5s [%-5s] %-20s", ts, lvl, ev.Comp, ev.Kind)}

		if ev.Msg != "" {
			parts = append(parts, ev.Msg)
		}
		if ev.Loop != "" {
			parts = append(parts, "loop="+ev.Loop)
		}
		if ev.Source != "" {
			parts = append(parts, "src="+ev.Source)
		}
		if ev.State != "" {
			parts = append(parts, "state="+ev.State)
		}
		if ev.DurMs > 0 {
			parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
		}
		if ev.Count > 0 {
			parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
		}
		if ev.Added > 0 || ev.Dups > 0 {
			parts = append(parts, fmt.Sprintf("added=%d dups=%d", ev.Added, ev.Dups))
		}
		if ev.Pruned > 0 {
			parts = append(parts, fmt.Sprintf("pruned=%d", ev.Pruned))
		}
		if ev.Err != "" {
			parts = append(parts, "err="+ev.Err)
		}

		return strings.Join(parts, " ")
	}

	lines := readTailLines(f, *tail, matchFn)
	for _, l := range lines {
		fmt.Println(formatFn(l.ev, l.raw))
	}
	if !*follow {
		return
	}

	// Follow mode: the scanner above consumed the file, so keep reading
	// from the current offset and poll for appended lines.
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if matchFn(ev) {
			fmt.Println(formatFn(ev, line))
		}
	}
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads the file and returns the last n lines matching the
// filter. n <= 0 reads to EOF without keeping anything, which positions
// the file for follow mode.
func readTailLines(f *os.File, n int, match func(eventRecord) bool) []parsedLine {
	scanner := bufio.NewScanner(f)
	// Big Extra maps can push a line past the default buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	if n <= 0 {
		for scanner.Scan() {
		}
		return nil
	}

	ring := make([]parsedLine, 0, n)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) {
			continue
		}
		// The scanner reuses its buffer; keep a copy.
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else {
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}

	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
