package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/logging"
	"github.com/ppiankov/postsweep/internal/store"
	"github.com/ppiankov/postsweep/internal/sweep"
	"github.com/spf13/cobra"
)

var (
	runDryRun bool
	runMaxAge int
	runSource string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete posts older than max_post_age",
	Long: `Authenticates, walks the account's history newest to oldest and deletes
every post older than max_post_age days. The first failure stops the run.`,
	RunE: runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "list what would be deleted without deleting")
	runCmd.Flags().IntVar(&runMaxAge, "max-age", config.DefaultMaxPostAge, "override general.max_post_age (days)")
	runCmd.Flags().StringVar(&runSource, "source", "", "override source (twitter, reddit)")
	rootCmd.AddCommand(runCmd)
}

// runOverrides applies the flags the user actually set.
func runOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("dry-run") {
			cfg.General.DryRun = runDryRun
		}
		if flags.Changed("max-age") {
			age := runMaxAge
			cfg.General.MaxPostAge = &age
		}
		if flags.Changed("source") {
			cfg.Source = strings.ToLower(strings.TrimSpace(runSource))
		}
	}
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(runOverrides(cmd))
	if err != nil {
		return describeError(err)
	}

	logger, closeLog, err := logging.Open(cfg.General.LogFile, cfg.General.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if cfg.General.DryRun {
		logger.Info("DryRun mode enabled, no posts will be deleted.")
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	opts := sweep.Options{
		MaxAgeDays:     cfg.General.MaxAgeDays(),
		DryRun:         cfg.General.DryRun,
		IncludeReplies: cfg.General.Replies(),
		IncludeReposts: cfg.General.Reposts(),
	}
	sweepOpts := []sweep.Option{sweep.WithLogger(logger)}

	ctx := cmd.Context()
	started := time.Now()

	var (
		db       *store.Store
		runID    string
		recorder *archiveRecorder
	)
	if cfg.Archive.Path != "" {
		path, err := config.ExpandPath(cfg.Archive.Path)
		if err != nil {
			return err
		}
		db, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = db.Close() }()

		recorder, err = newArchiveRecorder(db, cfg.Archive)
		if err != nil {
			return err
		}
		runID, err = db.BeginRun(ctx, store.RunInput{
			Source:     cfg.Source,
			DryRun:     opts.DryRun,
			MaxAgeDays: opts.MaxAgeDays,
			StartedAt:  started,
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		recorder.runID = runID
		sweepOpts = append(sweepOpts, sweep.WithRecorder(recorder))
		logger.Debug("archiving run", "id", runID, "path", path)
	}

	sweeper := sweep.New(src, opts, sweepOpts...)
	res, sweepErr := sweeper.Run(ctx)

	if db != nil {
		// A failed run still records how far it got.
		progress := sweeper.Progress()
		outcome := store.RunOutcome{
			Account:    progress.Session.String(),
			FinishedAt: time.Now(),
			Scanned:    progress.Scanned,
			Deleted:    progress.Deleted,
			Err:        sweepErr,
		}
		// The run row is closed even when the sweep was interrupted.
		if err := db.FinishRun(context.WithoutCancel(ctx), runID, outcome); err != nil {
			logger.Warn("archive: could not close run", "id", runID, "error", err)
		}
	}

	if sweepErr != nil {
		logger.Error("sweep failed", "error", sweepErr)
		return describeError(sweepErr)
	}

	printSummary(logger, res)
	return nil
}

func printSummary(logger *log.Logger, res sweep.Result) {
	suffix := ""
	if res.DryRun {
		suffix = " (dry run)"
	}
	logger.Debug("sweep complete", "scanned", res.Scanned, "pages", res.Pages)
	fmt.Fprintf(os.Stdout, "%s: Finished. %d deleted.%s\n", time.Now().Format(time.DateTime), res.Deleted, suffix)
}

// describeError turns the sweep's error kinds into the message the user
// sees. The original error stays wrapped.
func describeError(err error) error {
	var (
		cfgErr    *config.ConfigError
		authErr   *sweep.AuthError
		fetchErr  *sweep.FetchError
		deleteErr *sweep.DeleteError
	)
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Errorf("invalid configuration: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed, check your %s credentials: %w", authErr.Source, err)
	case errors.As(err, &fetchErr):
		return fmt.Errorf("could not list posts, nothing further was deleted: %w", err)
	case errors.As(err, &deleteErr):
		return fmt.Errorf("could not delete post %s, stopping: %w", deleteErr.PostID, err)
	default:
		return err
	}
}
