package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrida/chatloom/internal/config"
	"github.com/nerrida/chatloom/internal/transcript"
)

// defaultRecordPath matches where loomrec records when no path is given.
func defaultRecordPath() string {
	return filepath.Join(config.StateDir(), "transcript.db")
}

// openTranscript opens the store read-side or fatals with a hint. The
// explicit Stat avoids creating an empty database at a mistyped path.
func openTranscript(path string) *transcript.Recorder {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "error: no transcript at %s\n", path)
		fmt.Fprintf(os.Stderr, "  Record one with loomrec, or chatloom -record <file>.\n")
		os.Exit(1)
	}
	rec, err := transcript.Open(path)
	if err != nil {
		log.Fatalf("failed to open transcript: %v", err)
	}
	return rec
}

func runSessions() {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	dbPath := fs.String("db", defaultRecordPath(), "transcript sqlite file")
	limit := fs.Int("limit", 20, "number of sessions to list")
	fs.Parse(os.Args[1:])

	rec := openTranscript(*dbPath)
	defer rec.Close()

	sessions, err := rec.RecentSessions(*limit)
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return
	}

	for _, s := range sessions {
		ended := "open"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Format("15:04:05")
		}
		fmt.Printf("%-36s  %s  ended %-8s  %6d msgs  %s\n",
			s.ID,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			ended,
			s.MessageCount,
			strings.Join(s.Sources, ","))
	}
}

func runDump() {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dbPath := fs.String("db", defaultRecordPath(), "transcript sqlite file")
	session := fs.String("session", "", "session id (default: most recent)")
	limit := fs.Int("limit", 0, "maximum messages to print (0 = all)")
	fs.Parse(os.Args[1:])

	rec := openTranscript(*dbPath)
	defer rec.Close()

	id := *session
	if id == "" {
		sessions, err := rec.RecentSessions(1)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions recorded")
			return
		}
		id = sessions[0].ID
	}

	msgs, err := rec.SessionMessages(id, *limit)
	if err != nil {
		log.Fatalf("failed to read session %s: %v", id, err)
	}
	for _, m := range msgs {
		fmt.Printf("%s %s %s: %s\n",
			m.OccurredAt.Format("15:04:05"), m.SourceID, m.Author.Name, m.Text)
	}
}
