package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/Sternrassler/swapi-loader/internal/pipeline"
)

// printSummary writes the run outcome and the elapsed wall-clock time.
func printSummary(w io.Writer, runID string, s pipeline.Summary, err error) {
	status := color.New(color.FgGreen, color.Bold).Sprint("OK")
	if err != nil {
		status = color.New(color.FgRed, color.Bold).Sprint("FAILED")
	}

	fmt.Fprintf(w, "%s run %s\n", status, runID)
	fmt.Fprintf(w, "  batches: %d  fetched: %d  stored: %d  skipped: %d",
		s.Batches, s.Fetched, s.Stored, s.Skipped)
	if s.FailedInserts > 0 {
		color.New(color.FgYellow).Fprintf(w, "  failed inserts: %d", s.FailedInserts)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
}
