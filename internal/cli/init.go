package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/postsweep/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config and .env next to --config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	wrote, err := writeIfNotExists(path, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	// Credentials live in .env, readable by the owner only.
	wrote, err = writeIfNotExists(filepath.Join(dir, config.DefaultEnvFile), []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", dir)
	} else {
		fmt.Printf("Initialized %s with %d files. Fill in .env, then run 'postsweep verify'.\n", dir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# postsweep configuration

# twitter or reddit
source: twitter

twitter:
  consumer_key_env: TWITTER_CONSUMER_KEY
  consumer_secret_env: TWITTER_CONSUMER_SECRET
  access_token_env: TWITTER_ACCESS_TOKEN
  access_token_secret_env: TWITTER_ACCESS_TOKEN_SECRET

reddit:
  client_id_env: REDDIT_CLIENT_ID
  client_secret_env: REDDIT_CLIENT_SECRET
  username_env: REDDIT_USERNAME
  password_env: REDDIT_PASSWORD
  user_agent: "postsweep/1.0"

general:
  # Start with dry_run: true and read the output before deleting for real.
  dry_run: true
  max_post_age: 180
  log_file: ""
  log_level: info
  include_replies: true
  include_reposts: true

archive:
  path: ""
  store_full_text: false
  redact: []
`

const exampleEnv = `TWITTER_CONSUMER_KEY=
TWITTER_CONSUMER_SECRET=
TWITTER_ACCESS_TOKEN=
TWITTER_ACCESS_TOKEN_SECRET=

REDDIT_CLIENT_ID=
REDDIT_CLIENT_SECRET=
REDDIT_USERNAME=
REDDIT_PASSWORD=
`
