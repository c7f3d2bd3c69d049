// Package config loads vigil configuration from YAML, layering
// defaults <- file <- environment <- CLI overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full vigil configuration.
type Config struct {
	SVN      SVNConfig      `yaml:"svn"`
	AI       AIConfig       `yaml:"ai"`
	DingTalk DingTalkConfig `yaml:"dingtalk"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Reviewer routing for notifications.
	PathReviewers    map[string][]string `yaml:"path_reviewers,omitempty"`
	DefaultReviewers []string            `yaml:"default_reviewers,omitempty"`
	UserMappingFile  string              `yaml:"user_mapping_file,omitempty"`

	// userMapping maps a source-control username to a chat user ID.
	userMapping map[string]string
}

// SVNConfig controls the commit source.
type SVNConfig struct {
	RepositoryURL   string        `yaml:"repository_url"`
	Username        string        `yaml:"username,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	MonitoredPaths  []string      `yaml:"monitored_paths,omitempty"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	PollLimit       int           `yaml:"poll_limit"`
	MaxRetryAttempt int           `yaml:"max_retry_attempts"`
}

// AIConfig controls the review collaborator.
type AIConfig struct {
	APIBase       string  `yaml:"api_base"`
	APIKey        string  `yaml:"api_key,omitempty"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	SystemPrompt  string  `yaml:"system_prompt,omitempty"`
	DiffLimit     int     `yaml:"diff_limit"`
	ChunkedReview bool    `yaml:"enable_chunked_review"`
	ChunkSize     int     `yaml:"chunk_size"`
}

// DingTalkConfig controls the notification collaborator.
type DingTalkConfig struct {
	WebhookURL string          `yaml:"webhook_url"`
	Secret     string          `yaml:"secret,omitempty"`
	AtAll      bool            `yaml:"at_all"`
	Messages   MessageSettings `yaml:"message_settings"`
}

// MessageSettings bounds outgoing chat messages.
type MessageSettings struct {
	MaxMessageLength    int  `yaml:"max_message_length"`
	EnableSplit         bool `yaml:"enable_message_split"`
	CommentMaxLength    int  `yaml:"comment_max_length"`
	SuggestionMaxLength int  `yaml:"suggestion_max_length"`
}

// WebhookConfig controls the push-trigger listener.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LedgerConfig controls commit state persistence.
type LedgerConfig struct {
	Path          string `yaml:"path"`
	LegacyPath    string `yaml:"legacy_path,omitempty"`
	RetentionDays int    `yaml:"retention_days"`
}

// RuntimeConfig bounds concurrent commit processing.
type RuntimeConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		SVN: SVNConfig{
			CheckInterval:   5 * time.Minute,
			CommandTimeout:  30 * time.Second,
			PollLimit:       10,
			MaxRetryAttempt: 3,
		},
		AI: AIConfig{
			Model:         "gpt-4o-mini",
			MaxTokens:     2000,
			Temperature:   0.3,
			DiffLimit:     8000,
			ChunkedReview: true,
			ChunkSize:     15000,
		},
		DingTalk: DingTalkConfig{
			Messages: MessageSettings{
				MaxMessageLength:    3000,
				EnableSplit:         true,
				CommentMaxLength:    200,
				SuggestionMaxLength: 200,
			},
		},
		Webhook: WebhookConfig{
			Enabled: false,
			Addr:    "localhost:8080",
		},
		Ledger: LedgerConfig{
			Path:          "data/commit_tracking.json",
			LegacyPath:    "data/processed_commits.json",
			RetentionDays: 30,
		},
		Runtime: RuntimeConfig{
			Workers:       4,
			QueueSize:     64,
			ShutdownGrace: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := SetField(&cfg, key, value); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.loadUserMapping(path); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile loads config from the given YAML file. Returns a zero Config and
// nil error if the file doesn't exist.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the given YAML file.
func Save(cfg Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the settings a running monitor cannot do without.
func (c Config) Validate() error {
	if c.SVN.RepositoryURL == "" {
		return fmt.Errorf("svn.repository_url is required")
	}
	if c.AI.APIBase == "" {
		return fmt.Errorf("ai.api_base is required")
	}
	if c.Runtime.Workers <= 0 {
		return fmt.Errorf("runtime.workers must be positive")
	}
	return nil
}

// UserID returns the chat user ID mapped to a source-control username,
// or "" when no mapping exists.
func (c Config) UserID(username string) string {
	return c.userMapping[username]
}

// ReviewersForPath returns the reviewers configured for the first prefix
// matching the file path, or nil when none match.
func (c Config) ReviewersForPath(path string) []string {
	for prefix, reviewers := range c.PathReviewers {
		if strings.HasPrefix(path, prefix) {
			return reviewers
		}
	}
	return nil
}

// SetUserMapping replaces the username to chat ID mapping. Used by tests and
// callers that assemble configuration programmatically.
func (c *Config) SetUserMapping(m map[string]string) {
	c.userMapping = m
}

// userMappingDoc is the shape of the optional user mapping file.
type userMappingDoc struct {
	UserMapping map[string]string `yaml:"user_mapping"`
}

func (c *Config) loadUserMapping(configPath string) error {
	mappingPath := c.UserMappingFile
	if mappingPath == "" {
		mappingPath = filepath.Join(filepath.Dir(configPath), "user_mapping.yaml")
	}
	data, err := os.ReadFile(mappingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading user mapping: %w", err)
	}
	var doc userMappingDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing user mapping: %w", err)
	}
	c.userMapping = doc.UserMapping
	return nil
}

func mergeFile(dst *Config, src Config) {
	if src.SVN.RepositoryURL != "" {
		dst.SVN.RepositoryURL = src.SVN.RepositoryURL
	}
	if src.SVN.Username != "" {
		dst.SVN.Username = src.SVN.Username
	}
	if src.SVN.Password != "" {
		dst.SVN.Password = src.SVN.Password
	}
	if len(src.SVN.MonitoredPaths) > 0 {
		dst.SVN.MonitoredPaths = src.SVN.MonitoredPaths
	}
	if src.SVN.CheckInterval > 0 {
		dst.SVN.CheckInterval = src.SVN.CheckInterval
	}
	if src.SVN.CommandTimeout > 0 {
		dst.SVN.CommandTimeout = src.SVN.CommandTimeout
	}
	if src.SVN.PollLimit > 0 {
		dst.SVN.PollLimit = src.SVN.PollLimit
	}
	if src.SVN.MaxRetryAttempt > 0 {
		dst.SVN.MaxRetryAttempt = src.SVN.MaxRetryAttempt
	}
	if src.AI.APIBase != "" {
		dst.AI.APIBase = src.AI.APIBase
	}
	if src.AI.APIKey != "" {
		dst.AI.APIKey = src.AI.APIKey
	}
	if src.AI.Model != "" {
		dst.AI.Model = src.AI.Model
	}
	if src.AI.MaxTokens > 0 {
		dst.AI.MaxTokens = src.AI.MaxTokens
	}
	if src.AI.Temperature > 0 {
		dst.AI.Temperature = src.AI.Temperature
	}
	if src.AI.SystemPrompt != "" {
		dst.AI.SystemPrompt = src.AI.SystemPrompt
	}
	if src.AI.DiffLimit > 0 {
		dst.AI.DiffLimit = src.AI.DiffLimit
	}
	if src.AI.ChunkSize > 0 {
		dst.AI.ChunkSize = src.AI.ChunkSize
	}
	// Bool fields: YAML false is indistinguishable from unset, so the merge
	// keeps a true from either layer.
	dst.AI.ChunkedReview = src.AI.ChunkedReview || dst.AI.ChunkedReview
	if src.DingTalk.WebhookURL != "" {
		dst.DingTalk.WebhookURL = src.DingTalk.WebhookURL
	}
	if src.DingTalk.Secret != "" {
		dst.DingTalk.Secret = src.DingTalk.Secret
	}
	dst.DingTalk.AtAll = src.DingTalk.AtAll || dst.DingTalk.AtAll
	if src.DingTalk.Messages.MaxMessageLength > 0 {
		dst.DingTalk.Messages.MaxMessageLength = src.DingTalk.Messages.MaxMessageLength
	}
	dst.DingTalk.Messages.EnableSplit = src.DingTalk.Messages.EnableSplit || dst.DingTalk.Messages.EnableSplit
	if src.DingTalk.Messages.CommentMaxLength > 0 {
		dst.DingTalk.Messages.CommentMaxLength = src.DingTalk.Messages.CommentMaxLength
	}
	if src.DingTalk.Messages.SuggestionMaxLength > 0 {
		dst.DingTalk.Messages.SuggestionMaxLength = src.DingTalk.Messages.SuggestionMaxLength
	}
	dst.Webhook.Enabled = src.Webhook.Enabled || dst.Webhook.Enabled
	if src.Webhook.Addr != "" {
		dst.Webhook.Addr = src.Webhook.Addr
	}
	if src.Ledger.Path != "" {
		dst.Ledger.Path = src.Ledger.Path
	}
	if src.Ledger.LegacyPath != "" {
		dst.Ledger.LegacyPath = src.Ledger.LegacyPath
	}
	if src.Ledger.RetentionDays > 0 {
		dst.Ledger.RetentionDays = src.Ledger.RetentionDays
	}
	if src.Runtime.Workers > 0 {
		dst.Runtime.Workers = src.Runtime.Workers
	}
	if src.Runtime.QueueSize > 0 {
		dst.Runtime.QueueSize = src.Runtime.QueueSize
	}
	if src.Runtime.ShutdownGrace > 0 {
		dst.Runtime.ShutdownGrace = src.Runtime.ShutdownGrace
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	dst.Logging.Development = src.Logging.Development || dst.Logging.Development
	if len(src.PathReviewers) > 0 {
		dst.PathReviewers = src.PathReviewers
	}
	if len(src.DefaultReviewers) > 0 {
		dst.DefaultReviewers = src.DefaultReviewers
	}
	if src.UserMappingFile != "" {
		dst.UserMappingFile = src.UserMappingFile
	}
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("VIGIL_SVN_URL"); v != "" {
		cfg.SVN.RepositoryURL = v
	}
	if v := os.Getenv("VIGIL_SVN_USERNAME"); v != "" {
		cfg.SVN.Username = v
	}
	if v := os.Getenv("VIGIL_SVN_PASSWORD"); v != "" {
		cfg.SVN.Password = v
	}
	if v := os.Getenv("VIGIL_AI_API_BASE"); v != "" {
		cfg.AI.APIBase = v
	}
	if v := os.Getenv("VIGIL_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("VIGIL_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("VIGIL_DINGTALK_WEBHOOK"); v != "" {
		cfg.DingTalk.WebhookURL = v
	}
	if v := os.Getenv("VIGIL_DINGTALK_SECRET"); v != "" {
		cfg.DingTalk.Secret = v
	}
	if v := os.Getenv("VIGIL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.Workers = n
		}
	}
	if v := os.Getenv("VIGIL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// SetField sets a single config field by key name. Returns an error if the
// key is unknown or the value does not parse.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "svn.repository_url":
		cfg.SVN.RepositoryURL = value
	case "svn.username":
		cfg.SVN.Username = value
	case "svn.password":
		cfg.SVN.Password = value
	case "svn.check_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("svn.check_interval must be a duration: %w", err)
		}
		cfg.SVN.CheckInterval = d
	case "svn.max_retry_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("svn.max_retry_attempts must be an integer: %w", err)
		}
		cfg.SVN.MaxRetryAttempt = n
	case "ai.api_base":
		cfg.AI.APIBase = value
	case "ai.api_key":
		cfg.AI.APIKey = value
	case "ai.model":
		cfg.AI.Model = value
	case "ai.diff_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ai.diff_limit must be an integer: %w", err)
		}
		cfg.AI.DiffLimit = n
	case "ai.chunk_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ai.chunk_size must be an integer: %w", err)
		}
		cfg.AI.ChunkSize = n
	case "dingtalk.webhook_url":
		cfg.DingTalk.WebhookURL = value
	case "dingtalk.secret":
		cfg.DingTalk.Secret = value
	case "webhook.addr":
		cfg.Webhook.Addr = value
	case "webhook.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("webhook.enabled must be a boolean: %w", err)
		}
		cfg.Webhook.Enabled = b
	case "ledger.path":
		cfg.Ledger.Path = value
	case "ledger.retention_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ledger.retention_days must be an integer: %w", err)
		}
		cfg.Ledger.RetentionDays = n
	case "runtime.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("runtime.workers must be an integer: %w", err)
		}
		cfg.Runtime.Workers = n
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
