// Package config loads bookfeed settings from defaults, a YAML file, a .env
// file and the environment, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Job names
const (
	JobBestsellers = "bestsellers"
	JobThread      = "thread"
	JobDigest      = "digest"
)

// Jobs lists every runnable job
var Jobs = []string{JobBestsellers, JobThread, JobDigest}

// Config holds all configuration for the application
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Telegram struct {
		Token   string        `yaml:"token"`
		ChatID  string        `yaml:"chat_id"`
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"telegram"`

	NYT struct {
		APIKey  string   `yaml:"api_key"`
		BaseURL string   `yaml:"base_url"`
		Lists   []string `yaml:"lists"`
	} `yaml:"nyt"`

	Reddit struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		UserAgent    string `yaml:"user_agent"`
		BaseURL      string `yaml:"base_url"`
		Subreddit    string `yaml:"subreddit"`
		ThreadTitle  string `yaml:"thread_title"`
		// ThreadID skips thread discovery when set
		ThreadID     string `yaml:"thread_id"`
		CommentLimit int    `yaml:"comment_limit"`
	} `yaml:"reddit"`

	OpenLibrary struct {
		BaseURL   string  `yaml:"base_url"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"openlibrary"`

	Delivery struct {
		Mode           string        `yaml:"mode"`
		BatchSize      int           `yaml:"batch_size"`
		PaceDelay      time.Duration `yaml:"pace_delay"`
		FailurePolicy  string        `yaml:"failure_policy"`
		MaxThreadBooks int           `yaml:"max_thread_books"`
		// BestsellersMode and ThreadMode apply when Mode is empty
		BestsellersMode string `yaml:"bestsellers_mode"`
		ThreadMode      string `yaml:"thread_mode"`
	} `yaml:"delivery"`

	Schedule struct {
		Bestsellers string `yaml:"bestsellers"`
		Thread      string `yaml:"thread"`
		Digest      string `yaml:"digest"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"schedule"`

	App struct {
		DryRun bool `yaml:"dry_run"`
	} `yaml:"app"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Telegram.Timeout = 15 * time.Second
	cfg.Reddit.UserAgent = "bookfeed/1.0"
	cfg.Reddit.Subreddit = "books"
	cfg.Reddit.ThreadTitle = "What We're Reading"
	cfg.Reddit.CommentLimit = 100
	cfg.OpenLibrary.RateLimit = 1
	cfg.Delivery.PaceDelay = 3 * time.Second
	cfg.Delivery.MaxThreadBooks = 30
	cfg.Delivery.BestsellersMode = "link"
	cfg.Delivery.ThreadMode = "link"
	cfg.Schedule.Bestsellers = "0 9 * * 0"
	cfg.Schedule.Thread = "0 9 * * 1,3,5,6"
	cfg.Schedule.Timezone = "UTC"
	return cfg
}

// Load builds the configuration. configFile and envFile are optional; a
// missing envFile is ignored, a missing configFile is an error.
func Load(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := cfg.mergeFile(configFile); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		// Existing environment variables win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// Decoding over the defaults keeps every key the file leaves out
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ModeFor returns the delivery mode for a job
func (c *Config) ModeFor(job string) string {
	if c.Delivery.Mode != "" {
		return c.Delivery.Mode
	}
	switch job {
	case JobBestsellers:
		return c.Delivery.BestsellersMode
	case JobThread:
		return c.Delivery.ThreadMode
	}
	return ""
}

// Location resolves the schedule timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, &ConfigError{Field: "schedule.timezone", Msg: err.Error()}
	}
	return loc, nil
}

// Validate checks the settings every job needs
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "BOOK_BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Field: strings.Join(missing, ", "),
			Msg:   "required configuration values are missing",
		}
	}
	if c.Delivery.MaxThreadBooks <= 0 {
		return &ConfigError{Field: "delivery.max_thread_books", Msg: "must be positive"}
	}
	if c.Delivery.BatchSize < 0 || c.Delivery.BatchSize > 10 {
		return &ConfigError{Field: "delivery.batch_size", Msg: "must be between 0 and 10"}
	}
	return nil
}

// ValidateJob checks the settings a single job needs
func (c *Config) ValidateJob(job string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch job {
	case JobBestsellers, JobDigest:
		if c.NYT.APIKey == "" {
			return &ConfigError{Field: "NYT_API_KEY", Msg: "is required for the " + job + " job"}
		}
	case JobThread:
	default:
		return &ConfigError{Field: "job", Msg: fmt.Sprintf("unknown job %q", job)}
	}
	return nil
}

// Redacted renders the config for logging without secrets
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"has_telegram_token":   c.Telegram.Token != "",
		"telegram_chat_id":     c.Telegram.ChatID,
		"has_nyt_api_key":      c.NYT.APIKey != "",
		"reddit_oauth":         c.Reddit.ClientID != "" && c.Reddit.ClientSecret != "",
		"subreddit":            c.Reddit.Subreddit,
		"delivery_mode":        c.Delivery.Mode,
		"failure_policy":       c.Delivery.FailurePolicy,
		"schedule_bestsellers": c.Schedule.Bestsellers,
		"schedule_thread":      c.Schedule.Thread,
		"schedule_digest":      c.Schedule.Digest,
		"dry_run":              c.App.DryRun,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

func loadFromEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	setString(&cfg.Telegram.Token, "BOOK_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Telegram.BaseURL, "TELEGRAM_BASE_URL")

	setString(&cfg.NYT.APIKey, "NYT_API_KEY")
	setString(&cfg.NYT.BaseURL, "NYT_BASE_URL")
	if lists := getEnv("NYT_LISTS", ""); lists != "" {
		cfg.NYT.Lists = splitList(lists)
	}

	setString(&cfg.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&cfg.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&cfg.Reddit.UserAgent, "REDDIT_USER_AGENT")
	setString(&cfg.Reddit.Subreddit, "REDDIT_SUBREDDIT")
	setString(&cfg.Reddit.ThreadID, "REDDIT_THREAD_ID")

	setString(&cfg.Delivery.Mode, "DELIVERY_MODE")
	setString(&cfg.Delivery.FailurePolicy, "DELIVERY_FAILURE_POLICY")

	setString(&cfg.Schedule.Bestsellers, "SCHEDULE_BESTSELLERS")
	setString(&cfg.Schedule.Thread, "SCHEDULE_THREAD")
	setString(&cfg.Schedule.Digest, "SCHEDULE_DIGEST")
	setString(&cfg.Schedule.Timezone, "SCHEDULE_TIMEZONE")

	var err error
	if cfg.Server.ShutdownTimeout, err = getDurationFromEnv("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.Delivery.PaceDelay, err = getDurationFromEnv("DELIVERY_PACE_DELAY", cfg.Delivery.PaceDelay); err != nil {
		return err
	}
	if cfg.Delivery.MaxThreadBooks, err = getIntFromEnv("MAX_THREAD_BOOKS", cfg.Delivery.MaxThreadBooks); err != nil {
		return err
	}
	if cfg.Reddit.CommentLimit, err = getIntFromEnv("REDDIT_COMMENT_LIMIT", cfg.Reddit.CommentLimit); err != nil {
		return err
	}
	if cfg.App.DryRun, err = getBoolFromEnv("DRY_RUN", cfg.App.DryRun); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBoolFromEnv(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, &ConfigError{Field: key, Msg: "is not a valid bool"}
	}
	return b, nil
}

func getIntFromEnv(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback, &ConfigError{Field: key, Msg: "is not a valid integer"}
	}
	return i, nil
}

func getDurationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, &ConfigError{Field: key, Msg: "is not a valid duration"}
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
