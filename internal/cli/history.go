package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/store"
	"github.com/spf13/cobra"
)

var (
	historySince  string
	historyLimit  int
	historyFormat string
	historyRun    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show archived runs and what they deleted",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "30d", "time window (e.g. 7d, 48h)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "list the deletions of one run id")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	if historyFormat != "terminal" && historyFormat != "json" && historyFormat != "" {
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}

	cfg, err := config.Read(configPath)
	if err != nil {
		return describeError(err)
	}
	if cfg.Archive.Path == "" {
		return errors.New("archive is disabled: set archive.path in config.yaml")
	}
	path, err := config.ExpandPath(cfg.Archive.Path)
	if err != nil {
		return err
	}

	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()

	if historyRun != "" {
		deletions, err := db.ListDeletions(ctx, historyRun)
		if err != nil {
			return err
		}
		if historyFormat == "json" {
			return printDeletionsJSON(os.Stdout, deletions)
		}
		printDeletions(os.Stdout, historyRun, deletions)
		return nil
	}

	sinceDur, err := parseDuration(historySince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	runs, err := db.ListRuns(ctx, time.Now().Add(-sinceDur), historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if historyFormat == "json" {
		return printRunsJSON(os.Stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "No runs archived in this window. Run 'postsweep run' first.")
		return nil
	}
	printRuns(os.Stdout, runs, sinceDur, time.Now())
	return nil
}

func printRuns(w io.Writer, runs []store.Run, since time.Duration, now time.Time) {
	total := 0
	for _, r := range runs {
		if !r.DryRun {
			total += r.Deleted
		}
	}

	fmt.Fprintf(w, "postsweep history: %s, %d runs, %s posts deleted\n\n",
		formatWindow(since), len(runs), humanize.Comma(int64(total)))

	fmt.Fprintf(w, "  %-36s  %-8s  %-16s  %7s  %7s  %s\n", "Run", "Source", "Started", "Scanned", "Deleted", "Status")
	for _, r := range runs {
		deleted := humanize.Comma(int64(r.Deleted))
		if r.DryRun {
			deleted += "*"
		}
		fmt.Fprintf(w, "  %-36s  %-8s  %-16s  %7s  %7s  %s\n",
			r.ID, r.Source, humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			humanize.Comma(int64(r.Scanned)), deleted, runStatus(r))
	}

	for _, r := range runs {
		if r.DryRun {
			fmt.Fprintln(w, "\n  * dry run, nothing was deleted")
			break
		}
	}
}

func runStatus(r store.Run) string {
	switch r.Status {
	case store.StatusFailed:
		return "failed: " + r.Error
	case store.StatusOK:
		return fmt.Sprintf("ok in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	default:
		return r.Status
	}
}

func printDeletions(w io.Writer, runID string, deletions []store.Deletion) {
	if len(deletions) == 0 {
		fmt.Fprintf(w, "No deletions recorded for run %s.\n", runID)
		return
	}
	fmt.Fprintf(w, "Run %s: %d posts\n\n", runID, len(deletions))
	for _, d := range deletions {
		fmt.Fprintf(w, "  %s/%s (%s, %d days old): %s\n",
			d.PostedAt.UTC().Format(time.RFC3339), d.PostID, d.Kind, d.AgeDays, d.Text)
	}
}

type jsonRun struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Account    string     `json:"account,omitempty"`
	DryRun     bool       `json:"dry_run"`
	MaxAgeDays int        `json:"max_age_days"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scanned    int        `json:"scanned"`
	Deleted    int        `json:"deleted"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

func printRunsJSON(w io.Writer, runs []store.Run) error {
	out := make([]jsonRun, 0, len(runs))
	for _, r := range runs {
		jr := jsonRun{
			ID:         r.ID,
			Source:     r.Source,
			Account:    r.Account,
			DryRun:     r.DryRun,
			MaxAgeDays: r.MaxAgeDays,
			StartedAt:  r.StartedAt,
			Scanned:    r.Scanned,
			Deleted:    r.Deleted,
			Status:     r.Status,
			Error:      r.Error,
		}
		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			jr.FinishedAt = &finished
		}
		out = append(out, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"runs": out})
}

type jsonDeletion struct {
	PostID    string    `json:"post_id"`
	Kind      string    `json:"kind"`
	PostedAt  time.Time `json:"posted_at"`
	DeletedAt time.Time `json:"deleted_at"`
	AgeDays   int       `json:"age_days"`
	Text      string    `json:"text"`
	DryRun    bool      `json:"dry_run"`
}

func printDeletionsJSON(w io.Writer, deletions []store.Deletion) error {
	out := make([]jsonDeletion, 0, len(deletions))
	for _, d := range deletions {
		out = append(out, jsonDeletion{
			PostID:    d.PostID,
			Kind:      d.Kind,
			PostedAt:  d.PostedAt,
			DeletedAt: d.DeletedAt,
			AgeDays:   d.AgeDays,
			Text:      d.Text,
			DryRun:    d.DryRun,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"deletions": out})
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatWindow(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("last %d days", hours/24)
	}
	return fmt.Sprintf("last %dh", hours)
}
