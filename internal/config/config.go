// Package config provides configuration management for the funding discovery service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "FUNDISC"

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the funding discovery service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains search event topic settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Providers contains the web search provider configurations.
	Providers ProvidersConfig `mapstructure:"providers"`
	// Resilience contains retry, circuit breaker and rate limiter settings.
	Resilience ResilienceConfig `mapstructure:"resilience"`
	// Discovery contains pipeline and nightly run settings.
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	// Registry contains domain registry cache settings.
	Registry RegistryConfig `mapstructure:"registry"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for discovery workflows.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// KafkaConfig holds the search event bus settings.
type KafkaConfig struct {
	// Enabled controls whether events are published and search requests consumed.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// GroupID is the consumer group for the search request listener.
	GroupID string `mapstructure:"group_id"`
	// Topics holds the topic names.
	Topics KafkaTopicsConfig `mapstructure:"topics"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// MaxAttempts is the number of produce attempts before giving up.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// KafkaTopicsConfig names the discovery topics.
type KafkaTopicsConfig struct {
	SearchRequests   string `mapstructure:"search_requests"`
	RawResults       string `mapstructure:"raw_results"`
	ValidatedResults string `mapstructure:"validated_results"`
	WorkflowErrors   string `mapstructure:"workflow_errors"`
}

// ProvidersConfig holds configuration for all search providers.
type ProvidersConfig struct {
	Brave      ProviderConfig `mapstructure:"brave"`
	SearXNG    ProviderConfig `mapstructure:"searxng"`
	Serper     ProviderConfig `mapstructure:"serper"`
	Tavily     ProviderConfig `mapstructure:"tavily"`
	Perplexica ProviderConfig `mapstructure:"perplexica"`
}

// ProviderConfig holds configuration for a single search provider.
type ProviderConfig struct {
	// Enabled controls whether this provider is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. FUNDISC_PROVIDERS_BRAVE_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout bounds a single search against this provider, retries included.
	Timeout time.Duration `mapstructure:"timeout"`
	// DailyLimit is the number of calls allowed per rolling 24h window (0 = unlimited).
	DailyLimit int `mapstructure:"daily_limit"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the token bucket size.
	Burst int `mapstructure:"burst"`
	// MaxResults caps the results requested per query.
	MaxResults int `mapstructure:"max_results"`
	// SearchDepth is the Tavily search depth (basic, advanced).
	SearchDepth string `mapstructure:"search_depth"`
}

// ResilienceConfig holds the per-provider resilience defaults.
type ResilienceConfig struct {
	// MaxAttempts is the total number of attempts, including the first call.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	// FailureRateThreshold opens the breaker when reached (0.0-1.0).
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	// MinimumCalls is the number of calls needed before the failure rate is evaluated.
	MinimumCalls int `mapstructure:"minimum_calls"`
	// WindowSize is the number of recent calls in the sliding window.
	WindowSize int `mapstructure:"window_size"`
	// OpenDuration is the cooldown before a half-open probe.
	OpenDuration time.Duration `mapstructure:"open_duration"`
}

// DiscoveryConfig holds pipeline settings.
type DiscoveryConfig struct {
	// TotalTimeout bounds a whole fan-out across providers.
	TotalTimeout time.Duration `mapstructure:"total_timeout"`
	// ConfidenceThreshold is the inclusive crawl threshold.
	ConfidenceThreshold string `mapstructure:"confidence_threshold"`
	// MaxResultsPerQuery is the default result count per provider.
	MaxResultsPerQuery int `mapstructure:"max_results_per_query"`
	// SpamTLDs are rejected before any analysis.
	SpamTLDs []string `mapstructure:"spam_tlds"`
	// Nightly holds the scheduled run settings.
	Nightly NightlyConfig `mapstructure:"nightly"`
}

// NightlyConfig holds the scheduled discovery run settings.
type NightlyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Cron         string `mapstructure:"cron"`
	KeywordQuery string `mapstructure:"keyword_query"`
	AIQuery      string `mapstructure:"ai_query"`
}

// RegistryConfig holds the blacklist cache settings.
type RegistryConfig struct {
	// BlacklistCacheSize is the number of domains kept in the cache.
	BlacklistCacheSize int `mapstructure:"blacklist_cache_size"`
	// BlacklistCacheTTL is how long a blacklist lookup is trusted.
	BlacklistCacheTTL time.Duration `mapstructure:"blacklist_cache_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/funding-discovery")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Providers.Brave.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_BRAVE_API_KEY")
	cfg.Providers.Serper.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_SERPER_API_KEY")
	cfg.Providers.Tavily.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_TAVILY_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fundisc")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "funding_discovery")
	// Use FUNDISC_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "funding-discovery")
	v.SetDefault("temporal.task_queue", "funding-discovery-tasks")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "funding-discovery-search-requests")
	v.SetDefault("kafka.topics.search_requests", "search-requests")
	v.SetDefault("kafka.topics.raw_results", "search-results-raw")
	v.SetDefault("kafka.topics.validated_results", "search-results-validated")
	v.SetDefault("kafka.topics.workflow_errors", "workflow-errors")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.max_attempts", 3)

	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("providers.brave.enabled", true)
	v.SetDefault("providers.brave.base_url", "https://api.search.brave.com")
	v.SetDefault("providers.brave.timeout", "5s")
	v.SetDefault("providers.brave.daily_limit", 50)
	v.SetDefault("providers.brave.rate_limit", 1.0)
	v.SetDefault("providers.brave.burst", 1)
	v.SetDefault("providers.brave.max_results", 20)

	v.SetDefault("providers.searxng.enabled", true)
	v.SetDefault("providers.searxng.base_url", "http://localhost:8888")
	// SearXNG fans out to several engines itself, so it gets a longer budget.
	v.SetDefault("providers.searxng.timeout", "7s")
	v.SetDefault("providers.searxng.daily_limit", 0)
	v.SetDefault("providers.searxng.rate_limit", 5.0)
	v.SetDefault("providers.searxng.burst", 5)
	v.SetDefault("providers.searxng.max_results", 20)

	v.SetDefault("providers.serper.enabled", true)
	v.SetDefault("providers.serper.base_url", "https://google.serper.dev")
	v.SetDefault("providers.serper.timeout", "5s")
	v.SetDefault("providers.serper.daily_limit", 60)
	v.SetDefault("providers.serper.rate_limit", 2.0)
	v.SetDefault("providers.serper.burst", 2)
	v.SetDefault("providers.serper.max_results", 20)

	v.SetDefault("providers.tavily.enabled", true)
	v.SetDefault("providers.tavily.base_url", "https://api.tavily.com")
	v.SetDefault("providers.tavily.timeout", "6s")
	v.SetDefault("providers.tavily.daily_limit", 25)
	v.SetDefault("providers.tavily.rate_limit", 1.0)
	v.SetDefault("providers.tavily.burst", 1)
	v.SetDefault("providers.tavily.max_results", 10)
	v.SetDefault("providers.tavily.search_depth", "basic")

	v.SetDefault("providers.perplexica.enabled", false)
	v.SetDefault("providers.perplexica.base_url", "http://localhost:3001")
	v.SetDefault("providers.perplexica.timeout", "15s")
	v.SetDefault("providers.perplexica.daily_limit", 0)
	v.SetDefault("providers.perplexica.rate_limit", 1.0)
	v.SetDefault("providers.perplexica.burst", 1)
	v.SetDefault("providers.perplexica.max_results", 10)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff", "500ms")
	v.SetDefault("resilience.backoff_multiplier", 2.0)
	v.SetDefault("resilience.failure_rate_threshold", 0.5)
	v.SetDefault("resilience.minimum_calls", 5)
	v.SetDefault("resilience.window_size", 10)
	v.SetDefault("resilience.open_duration", "30s")

	v.SetDefault("discovery.total_timeout", "10s")
	v.SetDefault("discovery.confidence_threshold", "0.60")
	v.SetDefault("discovery.max_results_per_query", 25)
	v.SetDefault("discovery.spam_tlds", []string{"xyz", "top", "tk", "ml", "ga", "cf", "gq", "loan", "click"})
	v.SetDefault("discovery.nightly.enabled", false)
	v.SetDefault("discovery.nightly.cron", "0 2 * * *")
	v.SetDefault("discovery.nightly.keyword_query", "education grants scholarships Bulgaria Eastern Europe")
	v.SetDefault("discovery.nightly.ai_query", "")

	v.SetDefault("registry.blacklist_cache_size", 4096)
	v.SetDefault("registry.blacklist_cache_ttl", "5m")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if err := c.Providers.validate(); err != nil {
		return err
	}

	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("resilience max_attempts must be at least 1")
	}
	if c.Resilience.FailureRateThreshold <= 0 || c.Resilience.FailureRateThreshold > 1 {
		return fmt.Errorf("resilience failure_rate_threshold must be in (0, 1]")
	}
	if c.Resilience.WindowSize < c.Resilience.MinimumCalls {
		return fmt.Errorf("resilience window_size (%d) must be >= minimum_calls (%d)",
			c.Resilience.WindowSize, c.Resilience.MinimumCalls)
	}

	if c.Discovery.TotalTimeout <= 0 {
		return fmt.Errorf("discovery total_timeout must be positive")
	}
	threshold, err := decimal.NewFromString(c.Discovery.ConfidenceThreshold)
	if err != nil {
		return fmt.Errorf("invalid discovery confidence_threshold %q: %w", c.Discovery.ConfidenceThreshold, err)
	}
	if threshold.IsNegative() || threshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("discovery confidence_threshold must be between 0 and 1")
	}
	if c.Discovery.MaxResultsPerQuery < 1 || c.Discovery.MaxResultsPerQuery > 100 {
		return fmt.Errorf("discovery max_results_per_query must be between 1 and 100")
	}
	if c.Discovery.Nightly.Enabled && c.Discovery.Nightly.Cron == "" {
		return fmt.Errorf("discovery nightly cron is required when the nightly run is enabled")
	}

	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// structValidator checks the enumerated string fields tagged with validate.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Threshold returns the parsed crawl threshold. Validate guarantees it parses.
func (d *DiscoveryConfig) Threshold() decimal.Decimal {
	t, err := decimal.NewFromString(d.ConfidenceThreshold)
	if err != nil {
		return decimal.RequireFromString("0.60")
	}
	return t
}

// All returns the provider configurations keyed by provider name.
func (p *ProvidersConfig) All() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"brave":      p.Brave,
		"searxng":    p.SearXNG,
		"serper":     p.Serper,
		"tavily":     p.Tavily,
		"perplexica": p.Perplexica,
	}
}

func (p *ProvidersConfig) validate() error {
	enabled := 0
	for name, pc := range p.All() {
		if !pc.Enabled {
			continue
		}
		enabled++
		if pc.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", name)
		}
		if pc.Timeout <= 0 {
			return fmt.Errorf("provider %s: timeout must be positive", name)
		}
		if pc.DailyLimit < 0 {
			return fmt.Errorf("provider %s: daily_limit must not be negative", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one search provider must be enabled")
	}
	return nil
}
