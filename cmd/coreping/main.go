// Command coreping is a diagnostic client for the core I/O runtime: it
// dials one node, runs the channel bootstrap pipeline, and reports what
// was negotiated (spec.md §9 "diagnostic tooling").
package main

import (
	"fmt"
	"os"

	"github.com/avsej/gocbcore-lite/cmd/coreping/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
