package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all run-level configuration for drive-sync. Values are
// layered: the optional YAML config file provides defaults, environment
// variables override the file, and CLI flags override both (applied by
// the cmd package after Load).
type Config struct {
	// Local directory tree to sync. Required.
	LocalDir string `env:"DRIVE_SYNC_LOCAL_DIR" yaml:"local_dir"`

	// Name of the remote root folder to sync into. Found or created
	// under the store root on every run. Required.
	RemoteFolder string `env:"DRIVE_SYNC_REMOTE_FOLDER" yaml:"remote_folder"`

	// Sync direction: push, pull, or both (push then pull).
	Direction string `env:"DRIVE_SYNC_DIRECTION" yaml:"direction"`

	// Conflict policy: newer-wins, local-wins, remote-wins, or skip.
	ConflictPolicy string `env:"DRIVE_SYNC_CONFLICT" yaml:"conflict"`

	// DryRun logs what would happen without touching the remote store.
	DryRun bool `env:"DRIVE_SYNC_DRY_RUN" yaml:"dry_run"`

	// CompareHashes enables the MD5 tier of the update check. Slower:
	// every size-and-mtime match re-reads the local file.
	CompareHashes bool `env:"DRIVE_SYNC_COMPARE_HASHES" yaml:"compare_hashes"`

	// Watch keeps the process running and re-pushes on local changes.
	Watch bool `env:"DRIVE_SYNC_WATCH" yaml:"watch"`

	// Remote API endpoints. Empty means the drive package defaults.
	APIBaseURL    string `env:"DRIVE_SYNC_API_URL" yaml:"api_url"`
	UploadBaseURL string `env:"DRIVE_SYNC_UPLOAD_URL" yaml:"upload_url"`
	TokenURL      string `env:"DRIVE_SYNC_TOKEN_URL" yaml:"token_url"`

	// Path to the OAuth client credentials file. May be a sealed file
	// produced by `drive-sync encrypt-credentials`, in which case
	// CredentialsPassphrase must be set.
	CredentialsPath       string `env:"DRIVE_SYNC_CREDENTIALS" yaml:"credentials"`
	CredentialsPassphrase string `env:"DRIVE_SYNC_CREDENTIALS_PASSPHRASE" yaml:"-"`

	// Directory for the state database. Defaults to ~/.drive-sync.
	StateDir string `env:"DRIVE_SYNC_STATE_DIR" yaml:"state_dir"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" yaml:"environment"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from the optional YAML config file and the
// environment. It first attempts to load a .env file if present, then
// the YAML file at path (or the default location when path is empty),
// then parses env vars on top.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges the YAML config file into cfg. A missing file is not
// an error unless the path was given explicitly.
func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".drive-sync", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyDefaults() error {
	if c.Direction == "" {
		c.Direction = "both"
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = "newer-wins"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}

	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determining home directory: %w", err)
		}
		c.StateDir = filepath.Join(home, ".drive-sync")
	}

	if c.CredentialsPath == "" {
		c.CredentialsPath = filepath.Join(c.StateDir, "credentials.json")
	}

	return nil
}

// Validate checks the configuration after all override layers have been
// applied. Called from the cmd package once flags are merged in.
func (c *Config) Validate() error {
	if c.LocalDir == "" {
		return fmt.Errorf("DRIVE_SYNC_LOCAL_DIR is required")
	}

	if c.RemoteFolder == "" {
		return fmt.Errorf("DRIVE_SYNC_REMOTE_FOLDER is required")
	}

	switch c.Direction {
	case "push", "pull", "both":
	default:
		return fmt.Errorf("invalid direction %q (want push, pull, or both)", c.Direction)
	}

	switch c.ConflictPolicy {
	case "newer-wins", "local-wins", "remote-wins", "skip":
	default:
		return fmt.Errorf("invalid conflict policy %q (want newer-wins, local-wins, remote-wins, or skip)", c.ConflictPolicy)
	}

	// Resolve LocalDir to an absolute path. The walker joins relative
	// entry names onto it, and watch mode registers it with fsnotify;
	// both want a stable absolute root.
	absDir, err := filepath.Abs(c.LocalDir)
	if err != nil {
		return fmt.Errorf("resolving local dir to absolute path: %w", err)
	}
	c.LocalDir = absDir

	info, err := os.Stat(c.LocalDir)
	if err != nil {
		return fmt.Errorf("local dir %s: %w", c.LocalDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("local dir %s is not a directory", c.LocalDir)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
