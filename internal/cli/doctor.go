package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/privacy"
	"github.com/ppiankov/postsweep/internal/store"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, credentials and archive without calling the network",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	path, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}

	// Config file
	if _, err := os.Stat(path); err != nil {
		printCheck(false, "config file %s (run 'postsweep init')", path)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config file %s", path)

	cfg, err := config.Read(path)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}

	// Source and credentials
	if err := cfg.Validate(); err != nil {
		printCheck(false, "%v", err)
		ok = false
	} else {
		mode := "delete"
		if cfg.General.DryRun {
			mode = "dry run"
		}
		printCheck(true, "source %s, max_post_age %d days, %s", cfg.Source, cfg.General.MaxAgeDays(), mode)
	}

	if cfg.General.MaxAgeDays() == 0 {
		printInfo("max_post_age is 0: every post older than now will be deleted")
	}

	// Redaction patterns
	if _, err := privacy.New(cfg.Archive.Redact); err != nil {
		printCheck(false, "archive.redact: %v", err)
		ok = false
	} else if len(cfg.Archive.Redact) > 0 {
		printCheck(true, "%d redact patterns", len(cfg.Archive.Redact))
	}

	// Archive
	if cfg.Archive.Path == "" {
		printInfo("archive disabled (set archive.path to keep a deletion journal)")
	} else if archivePath, err := config.ExpandPath(cfg.Archive.Path); err != nil {
		printCheck(false, "archive: %v", err)
		ok = false
	} else if db, err := store.Open(archivePath); err != nil {
		printCheck(false, "archive: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "archive %s", archivePath)
		checkLastRun(cmd.Context(), db)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkLastRun(ctx context.Context, db *store.Store) {
	runs, err := db.ListRuns(ctx, time.Time{}, 1)
	if err != nil || len(runs) == 0 {
		return
	}
	last := runs[0]
	switch last.Status {
	case store.StatusFailed:
		printInfo("last run %s failed: %s", humanize.Time(last.StartedAt), last.Error)
	case store.StatusRunning:
		printInfo("last run %s never finished", humanize.Time(last.StartedAt))
	default:
		printInfo("last run %s deleted %s posts", humanize.Time(last.StartedAt), humanize.Comma(int64(last.Deleted)))
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
