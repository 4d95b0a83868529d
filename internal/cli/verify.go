package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/postsweep/internal/config"
	"github.com/ppiankov/postsweep/internal/sweep"
	"github.com/spf13/cobra"
)

var verifySource string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check credentials without listing or deleting anything",
	RunE:  verifyAction,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySource, "source", "", "override source (twitter, reddit)")
	rootCmd.AddCommand(verifyCmd)
}

func verifyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if cmd.Flags().Changed("source") {
			cfg.Source = strings.ToLower(strings.TrimSpace(verifySource))
		}
	})
	if err != nil {
		return describeError(err)
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	session, err := src.Authenticate(cmd.Context())
	if err != nil {
		return describeError(&sweep.AuthError{Source: src.Name(), Err: err})
	}

	fmt.Fprintf(os.Stdout, "Authenticated to %s as %s\n", src.Name(), session)
	return nil
}
