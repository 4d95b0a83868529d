// Package cli provides the command-line interface for postsweep.
package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/postsweep/internal/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "postsweep",
	Short: "Delete your own posts older than a retention window",
	Long: `postsweep walks the post history of a Twitter or Reddit account from
newest to oldest and deletes every post older than max_post_age days.
Use --dry-run to see what would go without deleting anything.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("postsweep %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.log_level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config named by --config, applies the global
// overrides plus any command-specific ones, then validates.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
