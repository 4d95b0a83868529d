package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/postsweep/internal/classify"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "~/.postsweep/config.yaml"
	DefaultEnvFile    = ".env"
	DefaultSource     = SourceTwitter
	DefaultMaxPostAge = 180
	DefaultLogLevel   = "info"

	SourceTwitter = "twitter"
	SourceReddit  = "reddit"
)

var errMissing = errors.New("value is required")

// ConfigError reports a malformed or missing configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Config struct {
	Source  string        `yaml:"source"`
	Twitter TwitterConfig `yaml:"twitter"`
	Reddit  RedditConfig  `yaml:"reddit"`
	General GeneralConfig `yaml:"general"`
	Archive ArchiveConfig `yaml:"archive"`
}

// TwitterConfig holds OAuth1 keys. Each value may be given literally or
// through the named environment variable.
type TwitterConfig struct {
	ConsumerKey          string `yaml:"consumer_key"`
	ConsumerKeyEnv       string `yaml:"consumer_key_env"`
	ConsumerSecret       string `yaml:"consumer_secret"`
	ConsumerSecretEnv    string `yaml:"consumer_secret_env"`
	AccessToken          string `yaml:"access_token"`
	AccessTokenEnv       string `yaml:"access_token_env"`
	AccessTokenSecret    string `yaml:"access_token_secret"`
	AccessTokenSecretEnv string `yaml:"access_token_secret_env"`
}

type RedditConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecret    string `yaml:"client_secret"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	Username        string `yaml:"username"`
	UsernameEnv     string `yaml:"username_env"`
	Password        string `yaml:"password"`
	PasswordEnv     string `yaml:"password_env"`
	UserAgent       string `yaml:"user_agent"`
}

type GeneralConfig struct {
	DryRun         bool   `yaml:"dry_run"`
	MaxPostAge     *int   `yaml:"max_post_age"`
	LogFile        string `yaml:"log_file"`
	LogLevel       string `yaml:"log_level"`
	IncludeReplies *bool  `yaml:"include_replies"`
	IncludeReposts *bool  `yaml:"include_reposts"`
}

// MaxAgeDays returns the retention window in days.
func (g GeneralConfig) MaxAgeDays() int {
	if g.MaxPostAge == nil {
		return DefaultMaxPostAge
	}
	return *g.MaxPostAge
}

func (g GeneralConfig) Replies() bool { return g.IncludeReplies == nil || *g.IncludeReplies }
func (g GeneralConfig) Reposts() bool { return g.IncludeReposts == nil || *g.IncludeReposts }

type ArchiveConfig struct {
	Path          string   `yaml:"path"`
	StoreFullText bool     `yaml:"store_full_text"`
	Redact        []string `yaml:"redact"`
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Load reads the config file at path and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads a .env file beside path if one exists, parses the config,
// applies defaults and resolves env vars. It does not validate, so callers
// can apply overrides first.
func Read(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigError{Err: errors.New("config path is required")}
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("read config: %w", err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("parse config: %w", err)}
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(path), DefaultEnvFile)); err != nil {
		return nil, &ConfigError{Err: err}
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)
	return &cfg, nil
}

// loadEnvFile loads KEY=value pairs without overriding variables that are
// already set in the environment.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))

	if cfg.General.MaxPostAge == nil {
		age := DefaultMaxPostAge
		cfg.General.MaxPostAge = &age
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = DefaultLogLevel
	}

	tw := &cfg.Twitter
	defaultEnv(&tw.ConsumerKeyEnv, tw.ConsumerKey, "TWITTER_CONSUMER_KEY")
	defaultEnv(&tw.ConsumerSecretEnv, tw.ConsumerSecret, "TWITTER_CONSUMER_SECRET")
	defaultEnv(&tw.AccessTokenEnv, tw.AccessToken, "TWITTER_ACCESS_TOKEN")
	defaultEnv(&tw.AccessTokenSecretEnv, tw.AccessTokenSecret, "TWITTER_ACCESS_TOKEN_SECRET")

	rd := &cfg.Reddit
	defaultEnv(&rd.ClientIDEnv, rd.ClientID, "REDDIT_CLIENT_ID")
	defaultEnv(&rd.ClientSecretEnv, rd.ClientSecret, "REDDIT_CLIENT_SECRET")
	defaultEnv(&rd.UsernameEnv, rd.Username, "REDDIT_USERNAME")
	defaultEnv(&rd.PasswordEnv, rd.Password, "REDDIT_PASSWORD")
}

// defaultEnv names an env var for a credential given neither literally nor
// through an explicit *_env key.
func defaultEnv(envName *string, literal, fallback string) {
	if *envName == "" && literal == "" {
		*envName = fallback
	}
}

func resolveEnv(cfg *Config) {
	tw := &cfg.Twitter
	fromEnv(&tw.ConsumerKey, tw.ConsumerKeyEnv)
	fromEnv(&tw.ConsumerSecret, tw.ConsumerSecretEnv)
	fromEnv(&tw.AccessToken, tw.AccessTokenEnv)
	fromEnv(&tw.AccessTokenSecret, tw.AccessTokenSecretEnv)

	rd := &cfg.Reddit
	fromEnv(&rd.ClientID, rd.ClientIDEnv)
	fromEnv(&rd.ClientSecret, rd.ClientSecretEnv)
	fromEnv(&rd.Username, rd.UsernameEnv)
	fromEnv(&rd.Password, rd.PasswordEnv)
}

func fromEnv(value *string, envName string) {
	if *value == "" && envName != "" {
		*value = os.Getenv(envName)
	}
}

// Validate checks the fields a sweep depends on. It is run by Load and
// again by callers after applying command-line overrides.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceTwitter:
		if err := requireAll("twitter", []field{
			{"consumer_key", c.Twitter.ConsumerKey},
			{"consumer_secret", c.Twitter.ConsumerSecret},
			{"access_token", c.Twitter.AccessToken},
			{"access_token_secret", c.Twitter.AccessTokenSecret},
		}); err != nil {
			return err
		}
	case SourceReddit:
		if err := requireAll("reddit", []field{
			{"client_id", c.Reddit.ClientID},
			{"client_secret", c.Reddit.ClientSecret},
			{"username", c.Reddit.Username},
			{"password", c.Reddit.Password},
		}); err != nil {
			return err
		}
	default:
		return &ConfigError{Field: "source", Err: fmt.Errorf("unknown source %q (want twitter or reddit)", c.Source)}
	}

	if age := c.General.MaxAgeDays(); age < 0 || age > classify.MaxDays {
		return &ConfigError{Field: "general.max_post_age", Err: fmt.Errorf("must be between 0 and %d days, got %d", classify.MaxDays, age)}
	}

	switch strings.ToLower(c.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return &ConfigError{Field: "general.log_level", Err: fmt.Errorf("unknown level %q", c.General.LogLevel)}
	}

	return nil
}

type field struct {
	name  string
	value string
}

// requireAll reports the first empty field.
func requireAll(section string, fields []field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ConfigError{Field: section + "." + f.name, Err: errMissing}
		}
	}
	return nil
}
