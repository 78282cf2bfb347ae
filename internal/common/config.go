package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration. Values resolve in order:
// defaults -> TOML file(s) -> environment -> CLI flags.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Site        SiteConfig      `toml:"site"`
	Browser     BrowserConfig   `toml:"browser"`
	Filter      FilterConfig    `toml:"filter"`
	Claude      ClaudeConfig    `toml:"claude"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
}

type StorageConfig struct {
	// Path is the BadgerDB directory.
	Path string `toml:"path" validate:"required"`
	// ResetOnStartup deletes the database on startup, for clean test runs.
	ResetOnStartup bool `toml:"reset_on_startup"`
}

type QueueConfig struct {
	// PollInterval is the dispatcher sleep between iterations. It bounds
	// both idle polling cost and pickup latency.
	PollInterval time.Duration `toml:"poll_interval" validate:"gt=0"`
	// TaskTimeout bounds one task's total processing time.
	TaskTimeout time.Duration `toml:"task_timeout" validate:"gt=0"`
}

// SiteConfig describes the external marketplace the sessions drive.
type SiteConfig struct {
	BaseURL  string `toml:"base_url" validate:"required,url"`
	LoginURL string `toml:"login_url" validate:"required,url"`
	// HomeURL is a neutral page the browser parks on between sessions.
	HomeURL string `toml:"home_url" validate:"required,url"`

	Username       string `toml:"username"`
	Password       string `toml:"password"`
	SecurityAnswer string `toml:"security_answer"`

	// ProfileName is the display name of the expected account. When set,
	// a session that finds a different account logged in logs it out and
	// signs in with the configured credentials.
	ProfileName string `toml:"profile_name"`

	// Categories maps category name -> listing URL for discovery runs.
	Categories map[string]string `toml:"categories"`

	// CursorFile is where the per-category discovery cursor persists
	// between runs.
	CursorFile string `toml:"cursor_file" validate:"required"`
}

type BrowserConfig struct {
	Headless  bool   `toml:"headless"`
	UserAgent string `toml:"user_agent"`
	// StepTimeout bounds a single browser interaction.
	StepTimeout time.Duration `toml:"step_timeout" validate:"gt=0"`
	// ActionDelay paces actions against the remote site.
	ActionDelay time.Duration `toml:"action_delay"`
	// ChallengeSelector identifies the anti-bot challenge container.
	ChallengeSelector string `toml:"challenge_selector"`
	// ChallengeTimeout bounds how long a challenge may take to clear.
	ChallengeTimeout time.Duration `toml:"challenge_timeout"`
}

// FilterConfig drives the posting filter predicate.
type FilterConfig struct {
	RequirePaymentVerified bool     `toml:"require_payment_verified"`
	RequireQualified       bool     `toml:"require_qualified"`
	BlockedKeywords        []string `toml:"blocked_keywords"`
	RequiredSkills         []string `toml:"required_skills"`
}

type ClaudeConfig struct {
	APIKey    string        `toml:"api_key"`
	Model     string        `toml:"model"`
	MaxTokens int           `toml:"max_tokens"`
	Timeout   time.Duration `toml:"timeout"`
}

type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a cron expression for periodic discover tasks.
	Schedule string `toml:"schedule"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Storage: StorageConfig{
			Path: "./data/appello",
		},
		Queue: QueueConfig{
			PollInterval: 3 * time.Second,
			TaskTimeout:  20 * time.Minute,
		},
		Site: SiteConfig{
			BaseURL:    "https://www.upwork.com",
			LoginURL:   "https://www.upwork.com/ab/account-security/login",
			HomeURL:    "https://www.google.com",
			CursorFile: "./data/cursors.toml",
		},
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			StepTimeout:       45 * time.Second,
			ActionDelay:       2 * time.Second,
			ChallengeSelector: "#challenge-form",
			ChallengeTimeout:  2 * time.Minute,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "*/15 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads defaults, merges each config file in order (later
// files override earlier ones), then applies environment overrides and
// validates the result.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides. Credentials
// are normally supplied this way rather than through the config file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("APPELLO_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("APPELLO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("APPELLO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("APPELLO_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if level := os.Getenv("APPELLO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if username := os.Getenv("APPELLO_SITE_USERNAME"); username != "" {
		config.Site.Username = username
	}
	if password := os.Getenv("APPELLO_SITE_PASSWORD"); password != "" {
		config.Site.Password = password
	}
	if answer := os.Getenv("APPELLO_SITE_SECURITY_ANSWER"); answer != "" {
		config.Site.SecurityAnswer = answer
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
}

// ApplyFlagOverrides applies command-line flag values, the highest
// priority in the resolution order.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the resolved config.
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
