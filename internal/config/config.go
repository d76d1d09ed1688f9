// Package config captures the coordinator and worker environment, the way
// distri/internal/env captures the distri environment. Unlike a
// process-wide singleton, Config is constructed once in main and passed
// down to the components that need it.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment variable and flag the coordinator
// consumes (see spec §6 "Environment variables consumed").
type Config struct {
	// DatabaseURL is a Postgres connection string.
	DatabaseURL string
	// TreePath is the local checkout of the package tree the pipeline
	// factory updates and resolves commits against.
	TreePath string
	// GitHubAccessToken authenticates PR comment/checklist calls.
	GitHubAccessToken string
	// GitHubAppID and GitHubAppPrivateKeyPath authenticate check-run
	// updates via a GitHub App installation token.
	GitHubAppID             int64
	GitHubAppPrivateKeyPath string
	// WorkerSecret is the shared secret workers present on every call.
	WorkerSecret string
	// WebhookSecret is read from BUILDIT_WEBHOOK_SECRET; no handler checks
	// inbound webhook deliveries against it.
	WebhookSecret string
	// Dev enables verbose, human-friendly logging instead of JSON.
	Dev bool
	// TelemetryEndpoint is optional; empty disables metric export.
	TelemetryEndpoint string
	// LocalRepoPath is the optional local repository host mirror path.
	LocalRepoPath string

	// Owner/Repo identify the GitHub repository pipelines are created
	// against (e.g. pull request lookups, check runs, comments).
	Owner string
	Repo  string

	// BotLogin is the GitHub account that authors job-result comments;
	// used to recognize and delete the propagator's own prior comments.
	BotLogin string

	// ChatToken authenticates the chat surface (e.g. a Slack bot token).
	ChatToken string

	// ListenAddr is the coordinator's HTTP listen address.
	ListenAddr string
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

// FromEnv constructs a Config from environment variables, applying
// non-empty, documented fallbacks rather than silently zero values.
func FromEnv() Config {
	return Config{
		DatabaseURL:             os.Getenv("BUILDIT_DATABASE_URL"),
		TreePath:                envOr("BUILDIT_TREE_PATH", os.ExpandEnv("$HOME/tree")),
		GitHubAccessToken:       os.Getenv("BUILDIT_GITHUB_ACCESS_TOKEN"),
		GitHubAppID:             getenvInt64("BUILDIT_GITHUB_APP_ID", 0),
		GitHubAppPrivateKeyPath: os.Getenv("BUILDIT_GITHUB_APP_PRIVATE_KEY_PATH"),
		WorkerSecret:            os.Getenv("BUILDIT_WORKER_SECRET"),
		WebhookSecret:           os.Getenv("BUILDIT_WEBHOOK_SECRET"),
		Dev:                     os.Getenv("BUILDIT_DEV") != "",
		TelemetryEndpoint:       os.Getenv("BUILDIT_TELEMETRY_ENDPOINT"),
		LocalRepoPath:           os.Getenv("BUILDIT_LOCAL_REPO_PATH"),
		Owner:                   envOr("BUILDIT_GITHUB_OWNER", "buildit-project"),
		Repo:                    envOr("BUILDIT_GITHUB_REPO", "packages"),
		BotLogin:                envOr("BUILDIT_BOT_LOGIN", "buildit-bot"),
		ChatToken:               os.Getenv("BUILDIT_CHAT_TOKEN"),
		ListenAddr:              envOr("BUILDIT_LISTEN_ADDR", ":3718"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// yamlOverlay mirrors the exported fields of Config that make sense to set
// from a local development config file instead of the environment.
type yamlOverlay struct {
	DatabaseURL string `yaml:"database_url"`
	TreePath    string `yaml:"tree_path"`
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	BotLogin    string `yaml:"bot_login"`
	ListenAddr  string `yaml:"listen_addr"`
	Dev         bool   `yaml:"dev"`
}

// ApplyYAMLFile overlays c with any fields set in the YAML file at path,
// leaving fields the file omits untouched. Used by cmd/builditd's -config
// flag as an alternative to setting every BUILDIT_* environment variable by
// hand.
func (c *Config) ApplyYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config overlay %s: %w", path, err)
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config overlay %s: %w", path, err)
	}
	if overlay.DatabaseURL != "" {
		c.DatabaseURL = overlay.DatabaseURL
	}
	if overlay.TreePath != "" {
		c.TreePath = overlay.TreePath
	}
	if overlay.Owner != "" {
		c.Owner = overlay.Owner
	}
	if overlay.Repo != "" {
		c.Repo = overlay.Repo
	}
	if overlay.BotLogin != "" {
		c.BotLogin = overlay.BotLogin
	}
	if overlay.ListenAddr != "" {
		c.ListenAddr = overlay.ListenAddr
	}
	if overlay.Dev {
		c.Dev = true
	}
	return nil
}

// RegisterFlags overlays flag definitions on top of the environment-derived
// defaults, using each field's current value as the flag default so the
// environment is the base layer and flags win.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DatabaseURL, "database_url", c.DatabaseURL, "Postgres connection string")
	fs.StringVar(&c.TreePath, "tree_path", c.TreePath, "local checkout of the package tree")
	fs.StringVar(&c.ListenAddr, "listen_addr", c.ListenAddr, "HTTP listen address")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "enable human-friendly development logging")
}

// WorkerConfig holds the environment a buildit-worker process needs,
// mirroring the original worker's Args struct.
type WorkerConfig struct {
	Server       string
	Arch         string
	WorkerSecret string

	TreePath     string
	CielPath     string
	CielInstance string

	RsyncHost        string
	UploadSSHKeyPath string
	PushpkgOptions   string

	LogArchiveDir string
}

// WorkerConfigFromEnv constructs a WorkerConfig from BUILDIT_WORKER_*
// environment variables.
func WorkerConfigFromEnv() WorkerConfig {
	return WorkerConfig{
		Server:           os.Getenv("BUILDIT_WORKER_SERVER"),
		Arch:             os.Getenv("BUILDIT_WORKER_ARCH"),
		WorkerSecret:     os.Getenv("BUILDIT_WORKER_SECRET"),
		TreePath:         envOr("BUILDIT_WORKER_TREE_PATH", os.ExpandEnv("$HOME/TREE")),
		CielPath:         envOr("BUILDIT_WORKER_CIEL_PATH", os.ExpandEnv("$HOME/ciel")),
		CielInstance:     envOr("BUILDIT_WORKER_CIEL_INSTANCE", "main"),
		RsyncHost:        os.Getenv("BUILDIT_WORKER_RSYNC_HOST"),
		UploadSSHKeyPath: os.Getenv("BUILDIT_WORKER_UPLOAD_SSH_KEY"),
		PushpkgOptions:   os.Getenv("BUILDIT_WORKER_PUSHPKG_OPTIONS"),
		LogArchiveDir:    envOr("BUILDIT_WORKER_LOG_ARCHIVE_DIR", "./push_failed_logs"),
	}
}

// RegisterFlags overlays worker flag definitions on top of the
// environment-derived defaults, same pattern as Config.RegisterFlags.
func (c *WorkerConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server, "server", c.Server, "coordinator base URL")
	fs.StringVar(&c.Arch, "arch", c.Arch, "architecture this worker builds for")
	fs.StringVar(&c.CielPath, "ciel_path", c.CielPath, "ciel container root")
	fs.StringVar(&c.CielInstance, "ciel_instance", c.CielInstance, "ciel instance name")
}

// Timeouts used throughout the coordinator and worker, per spec §5.
const (
	HTTPTimeout    = 30 * time.Second
	HeartbeatEvery = 60 * time.Second
	PollEvery      = 5 * time.Second
	LiveWindow     = 300 * time.Second
	RecycleWindow  = 300 * time.Second
	RecyclerTick   = 60 * time.Second
)
