// Command loomtool inspects what chatloom and loomrec leave behind: the
// transcript database and the JSONL event trail.
//
// Usage:
//
//	loomtool              Show help
//	loomtool sessions     List recorded sessions
//	loomtool dump         Print one session's messages
//	loomtool events       JSONL event trail viewer
package main

import (
	"fmt"
	"os"
)

const usage = `loomtool - chatloom transcript & event inspector

Usage:
  loomtool <command> [flags]

Commands:
  sessions    List recorded sessions (newest first)
  dump        Print one session's messages as plain text
  events      View and filter the JSONL event trail

Run 'loomtool <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags.
	os.Args = os.Args[1:]

	switch cmd {
	case "sessions":
		runSessions()
	case "dump":
		runDump()
	case "events":
		runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "loomtool: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
