package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pevans/archivist/archiver"
	"github.com/pevans/archivist/journal"
)

// printReport prints the summary of one run
func printReport(w io.Writer, r *archiver.Report, dir string) {
	fmt.Fprintf(w, "Archived %d, skipped %d, failed %d (%d posts indexed)\n",
		r.Archived, r.Skipped, r.Failed, len(r.Index))
	if r.Halted {
		fmt.Fprintln(w, "Stopped early: the browser session failed.")
	}
	if r.Cancelled {
		fmt.Fprintln(w, "Stopped early: interrupted.")
	}
	fmt.Fprintf(w, "Output: %s\n", dir)
}

// printRunsTable prints runs in human-readable table format
func printRunsTable(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs to display.")
		return
	}

	fmt.Fprintf(w, "%-8s  %-20s  %-16s  %-13s  %8s  %7s  %6s  %s\n",
		"RUN", "SITE", "STARTED", "MODE", "ARCHIVED", "SKIPPED", "FAILED", "STATE")

	for _, run := range runs {
		shortID := run.RunID.String()[:8]

		site := run.Site
		if len(site) > 20 {
			site = site[:17] + "..."
		}

		state := "running"
		switch {
		case run.Halted:
			state = "halted"
		case run.FinishedAt != nil:
			state = "done"
		}

		fmt.Fprintf(w, "%-8s  %-20s  %-16s  %-13s  %8d  %7d  %6d  %s\n",
			shortID,
			site,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Mode,
			run.Archived,
			run.Skipped,
			run.Failed,
			state,
		)
	}
}

// printRunsJSON prints runs in JSON format
func printRunsJSON(w io.Writer, runs []journal.Run) error {
	type runJSON struct {
		RunID      string  `json:"run_id"`
		Site       string  `json:"site"`
		Mode       string  `json:"mode"`
		StartedAt  string  `json:"started_at"`
		FinishedAt *string `json:"finished_at,omitempty"`
		Archived   int     `json:"archived"`
		Skipped    int     `json:"skipped"`
		Failed     int     `json:"failed"`
		Halted     bool    `json:"halted"`
	}

	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		r := runJSON{
			RunID:     run.RunID.String(),
			Site:      run.Site,
			Mode:      run.Mode,
			StartedAt: run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			Archived:  run.Archived,
			Skipped:   run.Skipped,
			Failed:    run.Failed,
			Halted:    run.Halted,
		}
		if run.FinishedAt != nil {
			s := run.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
			r.FinishedAt = &s
		}
		out = append(out, r)
	}

	data, err := json.MarshalIndent(map[string]any{"runs": out, "total": len(out)}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printOutcomesTable prints the per-post outcomes of one run
func printOutcomesTable(w io.Writer, outcomes []journal.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes recorded for this run.")
		return
	}

	fmt.Fprintf(w, "%-9s  %-8s  %s\n", "STATUS", "TIME", "URL")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%-9s  %-8s  %s\n", o.Status, o.RecordedAt.Local().Format("15:04:05"), o.URL)
		if o.Error != "" {
			fmt.Fprintf(w, "           error: %s\n", o.Error)
		}
	}
}

// printOutcomesJSON prints the per-post outcomes of one run in JSON format
func printOutcomesJSON(w io.Writer, outcomes []journal.Outcome) error {
	type outcomeJSON struct {
		URL        string `json:"url"`
		Status     string `json:"status"`
		Path       string `json:"path,omitempty"`
		Error      string `json:"error,omitempty"`
		RecordedAt string `json:"recorded_at"`
	}

	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, outcomeJSON{
			URL:        o.URL,
			Status:     o.Status,
			Path:       o.Path,
			Error:      o.Error,
			RecordedAt: o.RecordedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	data, err := json.MarshalIndent(map[string]any{"outcomes": out, "total": len(out)}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
