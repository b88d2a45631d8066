package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration, loaded from a YAML file.
// Zero values fall back to the defaults in Default().
type Config struct {
	Vault  Vault  `yaml:"vault"`
	Remote Remote `yaml:"remote"`
	Sync   Sync   `yaml:"sync"`
	Notify Notify `yaml:"notify"`
	Git    Git    `yaml:"git"`
	Debug  bool   `yaml:"debug"`
}

// Vault describes where the markdown documents live.
type Vault struct {
	Root    string   `yaml:"root"`
	Include []string `yaml:"include"` // doublestar patterns, default **/*.md
	Exclude []string `yaml:"exclude"`
}

// Remote holds the task service endpoint and credentials. The token may be
// overridden with the TODOIST_API_TOKEN environment variable.
type Remote struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Sync tunes the reconciliation behaviour. Field names mirror what they
// control in the task lines themselves.
type Sync struct {
	// Tag is the in-text token that marks a checkbox line for syncing.
	Tag string `yaml:"tag"`
	// AlternativeKeywords additionally accepts @ for dates, $ for times and
	// & for durations, for keyboards where emoji are a chore.
	AlternativeKeywords bool `yaml:"alternative_keywords"`
	// DefaultProjectName is used when neither parent, project comment nor a
	// label names a project.
	DefaultProjectName string `yaml:"default_project"`
	// IntervalSeconds is the periodic full-scan cadence.
	IntervalSeconds int `yaml:"interval_seconds"`
	// StartupDelaySeconds holds off the first pass while the vault host
	// settles its own indexing.
	StartupDelaySeconds int `yaml:"startup_delay_seconds"`
	// DebounceSeconds is the fixed wait after a raw document-change
	// notification before processing it.
	DebounceSeconds int `yaml:"debounce_seconds"`
	// LinksAppURI emits todoist://task?id= links instead of web URLs.
	LinksAppURI bool `yaml:"links_app_uri"`
	// DateBeforeTag places the identifier link before the due date token
	// instead of after the sync tag.
	DateBeforeTag bool `yaml:"date_before_tag"`
	// FullVaultSync tags every bare checkbox line in the vault.
	FullVaultSync bool `yaml:"full_vault_sync"`
	// CommentsSync writes remote note-added events under the owning line.
	CommentsSync bool `yaml:"comments_sync"`
	// MissingFlag is the marker text injected when the remote task is gone.
	MissingFlag string `yaml:"missing_flag"`
	// AutofixMissing removes the missing-flag marker during full vault sync
	// so the line can be re-synced as a fresh task.
	AutofixMissing bool `yaml:"autofix_missing"`
}

// Notify configures the optional chat notification sinks.
type Notify struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
}

// Git configures the optional vault commit after mutating passes.
type Git struct {
	Enabled bool `yaml:"enabled"`
	Push    bool `yaml:"push"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		Vault: Vault{
			Include: []string{"**/*.md"},
		},
		Remote: Remote{
			BaseURL: "https://todoist.com/api/v1",
		},
		Sync: Sync{
			Tag:                 "#tdsync",
			AlternativeKeywords: true,
			IntervalSeconds:     150,
			DebounceSeconds:     10,
			CommentsSync:        true,
			MissingFlag:         "Task not found in todoist",
		},
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error; defaults plus environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, cfg.validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv("TODOIST_API_TOKEN"); token != "" {
		c.Remote.Token = token
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.Notify.TelegramToken = token
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.Notify.DiscordToken = token
	}
}

func (c *Config) validate() error {
	if c.Sync.Tag == "" {
		return fmt.Errorf("sync.tag must not be empty")
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	return nil
}

// Interval returns the periodic scan cadence as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Debounce returns the post-change settle delay as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Sync.DebounceSeconds) * time.Second
}

// StartupDelay returns the initial hold-off as a duration.
func (c Config) StartupDelay() time.Duration {
	return time.Duration(c.Sync.StartupDelaySeconds) * time.Second
}
