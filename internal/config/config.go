// Package config loads sweeper configuration from environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Telegram account credentials. LoginCode may be pre-supplied for a
	// first login; if it is needed and absent the run fails instead of
	// prompting (unattended operation).
	APIID     int    `envconfig:"SWEEPER_API_ID" required:"true"`
	APIHash   string `envconfig:"SWEEPER_API_HASH" required:"true"`
	Phone     string `envconfig:"SWEEPER_PHONE"`
	Password  string `envconfig:"SWEEPER_PASSWORD"` // 2FA password, if set on the account
	LoginCode string `envconfig:"SWEEPER_LOGIN_CODE"`

	// Retention rules (defaults; a YAML rules file can override per chat)
	OlderThan     time.Duration `envconfig:"SWEEPER_OLDER_THAN" default:"720h"`
	Chats         string        `envconfig:"SWEEPER_CHATS" default:"all"` // "all" or comma-separated chat IDs
	ExcludePinned bool          `envconfig:"SWEEPER_EXCLUDE_PINNED" default:"true"`
	ExcludeOwn    bool          `envconfig:"SWEEPER_EXCLUDE_OWN" default:"false"`
	ExcludeMedia  string        `envconfig:"SWEEPER_EXCLUDE_MEDIA"` // comma-separated media kinds to keep
	DryRun        bool          `envconfig:"SWEEPER_DRY_RUN" default:"false"`
	RulesFile     string        `envconfig:"SWEEPER_RULES_FILE"`

	// Engine
	DataDir     string        `envconfig:"SWEEPER_DATA_DIR" default:"/data"`
	BatchSize   int           `envconfig:"SWEEPER_BATCH_SIZE" default:"100"` // protocol max per delete call
	PageSize    int           `envconfig:"SWEEPER_PAGE_SIZE" default:"100"`
	CallTimeout time.Duration `envconfig:"SWEEPER_CALL_TIMEOUT" default:"30s"`
	MaxAttempts int           `envconfig:"SWEEPER_MAX_ATTEMPTS" default:"5"`
	RatePerMin  int           `envconfig:"SWEEPER_RATE_PER_MIN" default:"20"`
	MaxBackoff  time.Duration `envconfig:"SWEEPER_MAX_BACKOFF" default:"64s"`

	// Management endpoint (health + metrics)
	MgmtListenAddr string `envconfig:"SWEEPER_MGMT_ADDR" default:":8090"`

	// Notification (optional — run summary posted to Slack when configured)
	SlackToken   string `envconfig:"SWEEPER_SLACK_TOKEN"`
	SlackChannel string `envconfig:"SWEEPER_SLACK_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("SWEEPER_BATCH_SIZE must be in [1,100], got %d", c.BatchSize)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("SWEEPER_PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if _, err := c.ChatIDs(); err != nil {
		return err
	}
	return nil
}

// AllChats reports whether every chat is in scope.
func (c *Config) AllChats() bool {
	return strings.EqualFold(strings.TrimSpace(c.Chats), "all") || strings.TrimSpace(c.Chats) == ""
}

// ChatIDs returns the configured chat scope. Nil means all chats.
func (c *Config) ChatIDs() ([]int64, error) {
	if c.AllChats() {
		return nil, nil
	}
	parts := strings.Split(c.Chats, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SWEEPER_CHATS: invalid chat id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("SWEEPER_CHATS is set but contains no valid entries")
	}
	return ids, nil
}

// ExcludeMediaKinds returns the media kinds exempt from deletion.
func (c *Config) ExcludeMediaKinds() []string {
	if c.ExcludeMedia == "" {
		return nil
	}
	parts := strings.Split(c.ExcludeMedia, ",")
	kinds := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			kinds = append(kinds, p)
		}
	}
	return kinds
}

// SlackEnabled returns true if summary notification is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackChannel != ""
}
