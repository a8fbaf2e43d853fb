// ABOUTME: Configuration loading and parsing for intake-bot
// ABOUTME: Supports YAML or TOML files with environment variable expansion, plus legacy env-only setup

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transport modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Message formats understood by bot.message_format.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAPIBase      = "https://platform-api.max.ru"
	DefaultDatabasePath = "./data/bot.db"
	DefaultHTTPAddr     = ":8080"
	DefaultWebhookPath  = "/webhook"
	DefaultMetricsPath  = "/metrics"
	DefaultPollTimeout  = 30 * time.Second
	DefaultPollLimit    = 50
	DefaultPollBackoff  = 2 * time.Second
	DefaultMenuDebounce = 5 * time.Second
	DefaultDedupeTTL    = 10 * time.Minute
	DefaultDedupeSize   = 50_000
)

// Config represents the complete intake-bot configuration
type Config struct {
	Bot       BotConfig       `yaml:"bot" toml:"bot"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Dialogue  DialogueConfig  `yaml:"dialogue" toml:"dialogue"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// BotConfig holds the platform credentials and operator routing
type BotConfig struct {
	AccessToken     string `yaml:"access_token" toml:"access_token"`
	APIBase         string `yaml:"api_base" toml:"api_base"`
	OperatorUserID  int64  `yaml:"operator_user_id" toml:"operator_user_id"`
	OperatorChatURL string `yaml:"operator_chat_url" toml:"operator_chat_url"`
	PrivacyURL      string `yaml:"privacy_url" toml:"privacy_url"`
	// MessageFormat is "markdown" (sent as is) or "html" (rendered locally)
	MessageFormat string  `yaml:"message_format" toml:"message_format"`
	SendRate      float64 `yaml:"send_rate" toml:"send_rate"`
	SendBurst     int     `yaml:"send_burst" toml:"send_burst"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// TransportConfig selects how updates arrive
type TransportConfig struct {
	Mode          string   `yaml:"mode" toml:"mode"`
	WebhookURL    string   `yaml:"webhook_url" toml:"webhook_url"`
	WebhookSecret string   `yaml:"webhook_secret" toml:"webhook_secret"`
	WebhookPath   string   `yaml:"webhook_path" toml:"webhook_path"`
	UpdateTypes   []string `yaml:"update_types" toml:"update_types"`
	PollLimit     int      `yaml:"poll_limit" toml:"poll_limit"`

	PollTimeout time.Duration `yaml:"-" toml:"-"`
	PollBackoff time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PollTimeoutRaw string `yaml:"poll_timeout" toml:"poll_timeout"`
	PollBackoffRaw string `yaml:"poll_backoff" toml:"poll_backoff"`
}

// ServerConfig holds the HTTP listener for health, metrics and webhooks
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// DialogueConfig tunes duplicate handling
type DialogueConfig struct {
	// MenuDebounce below zero disables menu suppression
	MenuDebounce time.Duration `yaml:"-" toml:"-"`
	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeSize   int           `yaml:"dedupe_size" toml:"dedupe_size"`

	MenuDebounceRaw string `yaml:"menu_debounce" toml:"menu_debounce"`
	DedupeTTLRaw    string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a configuration from the flat environment variables used by
// older deployments: MAX_ACCESS_TOKEN, MAX_API_BASE, OPERATOR_USER_ID,
// OPERATOR_CHAT_URL, DB_PATH, MODE, WEBHOOK_URL, WEBHOOK_SECRET and PORT.
// getenv is usually os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Config{
		Bot: BotConfig{
			AccessToken:     getenv("MAX_ACCESS_TOKEN"),
			APIBase:         getenv("MAX_API_BASE"),
			OperatorChatURL: getenv("OPERATOR_CHAT_URL"),
		},
		Transport: TransportConfig{
			Mode:          strings.ToLower(strings.TrimSpace(getenv("MODE"))),
			WebhookURL:    getenv("WEBHOOK_URL"),
			WebhookSecret: getenv("WEBHOOK_SECRET"),
		},
		Database: DatabaseConfig{Path: getenv("DB_PATH")},
	}

	if raw := strings.TrimSpace(getenv("OPERATOR_USER_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("OPERATOR_USER_ID must be numeric: %w", err)
		}
		cfg.Bot.OperatorUserID = id
	}

	if raw := strings.TrimSpace(getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("PORT %q is not a valid port", raw)
		}
		cfg.Server.HTTPAddr = ":" + raw
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating environment config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Bot.APIBase == "" {
		c.Bot.APIBase = DefaultAPIBase
	}
	if c.Bot.MessageFormat == "" {
		c.Bot.MessageFormat = FormatMarkdown
	}
	if c.Transport.Mode == "" {
		c.Transport.Mode = ModePolling
	}
	if c.Transport.WebhookPath == "" {
		c.Transport.WebhookPath = DefaultWebhookPath
	}
	if c.Transport.PollTimeout == 0 {
		c.Transport.PollTimeout = DefaultPollTimeout
	}
	if c.Transport.PollLimit == 0 {
		c.Transport.PollLimit = DefaultPollLimit
	}
	if c.Transport.PollBackoff == 0 {
		c.Transport.PollBackoff = DefaultPollBackoff
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Dialogue.MenuDebounce == 0 {
		c.Dialogue.MenuDebounce = DefaultMenuDebounce
	}
	if c.Dialogue.DedupeTTL == 0 {
		c.Dialogue.DedupeTTL = DefaultDedupeTTL
	}
	if c.Dialogue.DedupeSize == 0 {
		c.Dialogue.DedupeSize = DefaultDedupeSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.AccessToken) == "" {
		return fmt.Errorf("bot.access_token is required")
	}
	if c.Bot.OperatorUserID <= 0 {
		return fmt.Errorf("bot.operator_user_id is required")
	}
	if c.Bot.MessageFormat != FormatMarkdown && c.Bot.MessageFormat != FormatHTML {
		return fmt.Errorf("bot.message_format must be %q or %q, got %q", FormatMarkdown, FormatHTML, c.Bot.MessageFormat)
	}
	if c.Bot.SendRate < 0 {
		return fmt.Errorf("bot.send_rate must not be negative")
	}

	switch c.Transport.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Transport.WebhookURL == "" {
			return fmt.Errorf("transport.webhook_url is required in webhook mode")
		}
		u, err := url.Parse(c.Transport.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("transport.webhook_url must be an absolute http(s) URL")
		}
		if !strings.HasPrefix(c.Transport.WebhookPath, "/") {
			return fmt.Errorf("transport.webhook_path must start with /")
		}
	default:
		return fmt.Errorf("transport.mode must be %q or %q, got %q", ModePolling, ModeWebhook, c.Transport.Mode)
	}

	if (c.Transport.Mode == ModeWebhook || c.Metrics.Enabled) && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required for webhooks and metrics")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bot.request_timeout", cfg.Bot.RequestTimeoutRaw, &cfg.Bot.RequestTimeout},
		{"transport.poll_timeout", cfg.Transport.PollTimeoutRaw, &cfg.Transport.PollTimeout},
		{"transport.poll_backoff", cfg.Transport.PollBackoffRaw, &cfg.Transport.PollBackoff},
		{"dialogue.menu_debounce", cfg.Dialogue.MenuDebounceRaw, &cfg.Dialogue.MenuDebounce},
		{"dialogue.dedupe_ttl", cfg.Dialogue.DedupeTTLRaw, &cfg.Dialogue.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Marshal renders the configuration as YAML, or TOML when path ends in
// .toml. Durations are written from their raw strings.
func (c *Config) Marshal(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return out, nil
}
