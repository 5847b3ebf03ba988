// ABOUTME: Settings loading and parsing for convo-gateway
// ABOUTME: YAML file with defaults, environment variable expansion, and a process-wide singleton

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength is the minimum accepted length of auth.jwt_secret.
const MinJWTSecretLength = 32

// DefaultChatGPTBaseURL is used when revchatgpt.chatgpt_base_url is empty.
const DefaultChatGPTBaseURL = "https://chatgpt.com/backend-api/"

// Config represents the complete gateway configuration
type Config struct {
	Common     CommonConfig     `yaml:"common"`
	HTTP       HTTPConfig       `yaml:"http"`
	Data       DataConfig       `yaml:"data"`
	Auth       AuthConfig       `yaml:"auth"`
	RevChatGPT RevChatGPTConfig `yaml:"revchatgpt"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
	Stats      StatsConfig      `yaml:"stats"`
}

// CommonConfig holds startup behavior switches
type CommonConfig struct {
	PrintSQL                   bool   `yaml:"print_sql"`
	CreateInitialAdminUser     bool   `yaml:"create_initial_admin_user"`
	InitialAdminUserUsername   string `yaml:"initial_admin_user_username"`
	InitialAdminUserPassword   string `yaml:"initial_admin_user_password"`
	SyncConversationsOnStartup bool   `yaml:"sync_conversations_on_startup"`
	SyncConversationsRegularly bool   `yaml:"sync_conversations_regularly"`

	SyncConversationsInterval    time.Duration `yaml:"-"`
	SyncConversationsIntervalRaw string        `yaml:"sync_conversations_interval"`
}

// HTTPConfig holds the HTTP listener configuration
type HTTPConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`

	// RateLimitRequests caps requests per user per window; 0 disables limiting.
	RateLimitRequests  int           `yaml:"rate_limit_requests"`
	RateLimitWindow    time.Duration `yaml:"-"`
	RateLimitWindowRaw string        `yaml:"rate_limit_window"`
}

// Addr returns the host:port listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DataConfig holds storage locations
type DataConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabaseURL  string `yaml:"database_url"` // SQLite file path
	MongoDBURL   string `yaml:"mongodb_url"`  // empty keeps history documents in memory
	RunMigration bool   `yaml:"run_migration"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	JWTLifetimeSeconds int    `yaml:"jwt_lifetime_seconds"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	CookieName         string `yaml:"cookie_name"`
	UserSecret         string `yaml:"user_secret"`
}

// JWTLifetime returns the token lifetime as a duration.
func (a AuthConfig) JWTLifetime() time.Duration {
	return time.Duration(a.JWTLifetimeSeconds) * time.Second
}

// RevChatGPTConfig holds the upstream conversation service configuration
type RevChatGPTConfig struct {
	IsPlusAccount  bool   `yaml:"is_plus_account"`
	ChatGPTBaseURL string `yaml:"chatgpt_base_url"`
	AccessToken    string `yaml:"access_token"`
	AskTimeout     int    `yaml:"ask_timeout"` // seconds
}

// BaseURL returns the configured upstream base URL or the default.
func (r RevChatGPTConfig) BaseURL() string {
	if r.ChatGPTBaseURL == "" {
		return DefaultChatGPTBaseURL
	}
	return r.ChatGPTBaseURL
}

// APIConfig holds the OpenAI API settings used by api-type conversations
type APIConfig struct {
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	ReadTimeout    int    `yaml:"read_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	LogDir          string `yaml:"log_dir"`
	ConsoleLogLevel string `yaml:"console_log_level"`
	Format          string `yaml:"format"` // text, json
}

// StatsConfig holds statistics and metrics configuration
type StatsConfig struct {
	RequestCounterTimeWindow int  `yaml:"request_counter_time_window"` // seconds
	RequestCountsInterval    int  `yaml:"request_counts_interval"`     // seconds
	AskLogTimeWindow         int  `yaml:"ask_log_time_window"`         // seconds
	MetricsEnabled           bool `yaml:"metrics_enabled"`
	HistoryCacheSize         int  `yaml:"history_cache_size"`

	HistoryCacheTTL    time.Duration `yaml:"-"`
	HistoryCacheTTLRaw string        `yaml:"history_cache_ttl"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Common: CommonConfig{
			PrintSQL:                     false,
			CreateInitialAdminUser:       true,
			InitialAdminUserUsername:     "admin",
			InitialAdminUserPassword:     "password",
			SyncConversationsOnStartup:   true,
			SyncConversationsRegularly:   true,
			SyncConversationsInterval:    12 * time.Hour,
			SyncConversationsIntervalRaw: "12h",
		},
		HTTP: HTTPConfig{
			Host:             "127.0.0.1",
			Port:             8000,
			CORSAllowOrigins: []string{"http://localhost", "http://127.0.0.1"},

			RateLimitWindow:    time.Minute,
			RateLimitWindowRaw: "1m",
		},
		Data: DataConfig{
			DataDir:     "./data",
			DatabaseURL: "data/database.db",
		},
		Auth: AuthConfig{
			JWTSecret:          "MODIFY_THIS_TO_RANDOM_SECRET_OF_32_BYTES",
			JWTLifetimeSeconds: 86400,
			CookieMaxAge:       86400,
			CookieName:         "user_auth",
			UserSecret:         "MODIFY_THIS_TO_RANDOM_SECRET",
		},
		RevChatGPT: RevChatGPTConfig{
			AskTimeout: 600,
		},
		API: APIConfig{
			OpenAIBaseURL:  "https://api.openai.com/v1/",
			ConnectTimeout: 5,
			ReadTimeout:    60,
		},
		Log: LogConfig{
			LogDir:          "logs",
			ConsoleLogLevel: "INFO",
			Format:          "text",
		},
		Stats: StatsConfig{
			RequestCounterTimeWindow: 30 * 24 * 60 * 60,
			RequestCountsInterval:    30 * 60,
			AskLogTimeWindow:         7 * 24 * 60 * 60,
			MetricsEnabled:           true,
			HistoryCacheSize:         1000,
			HistoryCacheTTL:          time.Hour,
			HistoryCacheTTLRaw:       "1h",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Keys missing from the file keep their defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitRequests < 0 {
		return fmt.Errorf("http.rate_limit_requests must not be negative")
	}
	if c.HTTP.RateLimitRequests > 0 && c.HTTP.RateLimitWindow <= 0 {
		return fmt.Errorf("http.rate_limit_window must be positive when rate limiting is enabled")
	}
	if c.Data.DatabaseURL == "" {
		return fmt.Errorf("data.database_url is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.Auth.JWTLifetimeSeconds <= 0 {
		return fmt.Errorf("auth.jwt_lifetime_seconds must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.Common.CreateInitialAdminUser && c.Common.InitialAdminUserUsername == "" {
		return fmt.Errorf("common.initial_admin_user_username is required when create_initial_admin_user is set")
	}
	if c.RevChatGPT.AskTimeout <= 0 {
		return fmt.Errorf("revchatgpt.ask_timeout must be positive")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Common.SyncConversationsIntervalRaw != "" {
		cfg.Common.SyncConversationsInterval, err = time.ParseDuration(cfg.Common.SyncConversationsIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync_conversations_interval %q: %w", cfg.Common.SyncConversationsIntervalRaw, err)
		}
	}

	if cfg.HTTP.RateLimitWindowRaw != "" {
		cfg.HTTP.RateLimitWindow, err = time.ParseDuration(cfg.HTTP.RateLimitWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_limit_window %q: %w", cfg.HTTP.RateLimitWindowRaw, err)
		}
	}

	if cfg.Stats.HistoryCacheTTLRaw != "" {
		cfg.Stats.HistoryCacheTTL, err = time.ParseDuration(cfg.Stats.HistoryCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing history_cache_ttl %q: %w", cfg.Stats.HistoryCacheTTLRaw, err)
		}
	}

	return nil
}

var (
	globalMu  sync.RWMutex
	globalCfg *Config
)

// Set installs cfg as the process-wide configuration.
func Set(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalCfg = cfg
}

// Get returns the process-wide configuration, falling back to defaults
// when nothing has been installed.
func Get() *Config {
	globalMu.RLock()
	cfg := globalCfg
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCfg == nil {
		globalCfg = Default()
	}
	return globalCfg
}

// DefaultPath returns the configuration file location: the CONVO_CONFIG
// environment variable when set, otherwise ./config.yaml.
func DefaultPath() string {
	if p := os.Getenv("CONVO_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
