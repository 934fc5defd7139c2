package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bernardzulu23/phasesync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	now := time.Now()

	// Same calendar year: show "Jan  2 15:04:05"
	if t.Year() == now.Year() {
		return t.Local().Format("Jan _2 15:04:05")
	}

	// Different year: show "Jan  2  2006"
	return t.Local().Format("Jan _2  2006")
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printStats renders a coordinator snapshot as JSON or a short text block.
func printStats(w io.Writer, stats sync.Stats) error {
	if flagJSON {
		return printJSON(w, stats)
	}

	fmt.Fprintf(w, "Queue length:    %d\n", stats.QueueLength)
	fmt.Fprintf(w, "In progress:     %t\n", stats.SyncInProgress)
	fmt.Fprintf(w, "Pending retries: %d\n", stats.PendingRetries)

	if len(stats.LastSync) > 0 {
		fmt.Fprintln(w)

		keys := make([]string, 0, len(stats.LastSync))
		for k := range stats.LastSync {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, formatTime(stats.LastSync[k])})
		}

		printTable(w, []string{"RECORD", "LAST SYNC"}, rows)
	}

	printCounts(w, "FAILURES", stats.FailingRecords)
	printCounts(w, "DROPPED", stats.DroppedRecords)

	return nil
}

// printCounts writes a RECORD table for a per-record count map, if any.
func printCounts(w io.Writer, header string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	fmt.Fprintln(w)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprint(counts[k])})
	}

	printTable(w, []string{"RECORD", header}, rows)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
