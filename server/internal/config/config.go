package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one briefing alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over briefing fields:
	// "risk_level >= high", "additional_icu_beds > 0", "supply_status == critical".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// Webhook target types.
const (
	WebhookSlack = "slack"
	WebhookTeams = "teams"
	WebhookHTTP  = "http"
)

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	return env(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort             = 8080
	DefaultLogLevel             = "info"
	DefaultTimezone             = "UTC"
	DefaultRoleHeader           = "X-Surgecast-Role"
	DefaultHospitalHeader       = "X-Surgecast-Hospital"
	DefaultForecastTTL          = 15 * time.Minute
	DefaultMaxStale             = 24 * time.Hour
	DefaultComputeTimeout       = 30 * time.Second
	DefaultElevated             = 0.40
	DefaultHigh                 = 0.65
	DefaultCritical             = 0.85
	DefaultPatientsPerStaff     = 10.0
	DefaultSupplySurgeThreshold = 0.20
	DefaultModelTimeout         = 5 * time.Second
	DefaultModelMaxRetries      = 2
	DefaultModelRetryBackoff    = 200 * time.Millisecond
	DefaultSignalTTL            = 72 * time.Hour
	DefaultSchedulerInterval    = 15 * time.Minute
	DefaultSchedulerWorkers     = 4
	DefaultEventsTopic          = "surgecast.briefings"
	DefaultEventsBuffer         = 256
	DefaultStreamInterval       = 5 * time.Second
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	// Timezone names the IANA zone that decides which civil date is "today".
	Timezone string `yaml:"timezone"`

	Auth      AuthConfig      `yaml:"auth"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Risk      RiskConfig      `yaml:"risk"`
	Planning  PlanningConfig  `yaml:"planning"`
	Model     ModelConfig     `yaml:"model"`
	Storage   StorageConfig   `yaml:"storage"`
	Signals   SignalsConfig   `yaml:"signals"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
	Stream    StreamConfig    `yaml:"stream"`

	// Alerts holds rule definitions and webhook delivery targets. Hot-reloadable.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls how REST and WebSocket callers are identified.
type AuthConfig struct {
	// Mode is one of: jwt | header | none.
	//   jwt     HMAC-signed bearer tokens carrying role and hospital_id claims
	//   header  a trusted gateway sets the role and hospital headers
	//   none    every caller is admin (local development only)
	Mode string `yaml:"mode"`

	// SecretEnv names the environment variable holding the JWT signing secret.
	SecretEnv string `yaml:"secret_env"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer"`

	RoleHeader     string `yaml:"role_header"`
	HospitalHeader string `yaml:"hospital_header"`
}

// Secret returns the JWT signing secret resolved from the environment.
func (a AuthConfig) Secret() string {
	return env(a.SecretEnv)
}

// ForecastConfig controls the briefing cache.
type ForecastConfig struct {
	// TTL is how long a computed briefing is served before recomputation.
	TTL time.Duration `yaml:"ttl"`

	// MaxStale bounds how old a briefing may be and still be served when the
	// model is down. Older briefings are evicted.
	MaxStale time.Duration `yaml:"max_stale"`

	// ComputeTimeout bounds one full computation, model retries included.
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
}

// RiskConfig is the risk-level threshold table. Each value is the inclusive
// lower bound of its band.
type RiskConfig struct {
	Elevated float64 `yaml:"elevated"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// PlanningConfig holds the resource planner's ratios.
type PlanningConfig struct {
	PatientsPerStaff     float64 `yaml:"patients_per_staff"`
	SupplySurgeThreshold float64 `yaml:"supply_surge_threshold"`
}

// ModelConfig configures the forecast model client. With no Endpoint the
// built-in heuristic model is used.
type ModelConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Version      string        `yaml:"version"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RateLimit caps model calls per second across all hospitals; 0 disables.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// StorageConfig selects the backend for hospital state and briefing history.
type StorageConfig struct {
	// Driver is one of: memory | postgres.
	Driver string `yaml:"driver"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Migrate applies the embedded schema migrations at startup (default true).
	Migrate bool `yaml:"migrate"`
}

// DSN returns the database DSN resolved from the environment.
func (s StorageConfig) DSN() string {
	return env(s.DSNEnv)
}

// SignalsConfig selects the environmental signal store.
type SignalsConfig struct {
	// Driver is one of: memory | redis.
	Driver           string        `yaml:"driver"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPasswordEnv string        `yaml:"redis_password_env"`
	RedisDB          int           `yaml:"redis_db"`
	TTL              time.Duration `yaml:"ttl"`

	// Festivals lists YYYY-MM-DD dates flagged as festivals when signals are
	// derived from raw weather observations.
	Festivals []string `yaml:"festivals"`
}

// RedisPassword returns the Redis password resolved from the environment.
func (s SignalsConfig) RedisPassword() string {
	return env(s.RedisPasswordEnv)
}

// SchedulerConfig controls periodic recomputation of every hospital.
type SchedulerConfig struct {
	// Interval between refresh rounds; 0 disables the scheduler.
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
}

// EventsConfig configures briefing events on Kafka. No brokers disables it.
type EventsConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"buffer_size"`
}

// Enabled reports whether event publishing is configured.
func (e EventsConfig) Enabled() bool {
	return len(e.Brokers) > 0
}

// StreamConfig controls the admin WebSocket stream.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Location returns the configured time zone. Validation guarantees it loads.
func (s ServerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel maps LogLevel onto a slog.Level.
func (s ServerConfig) SlogLevel() slog.Level {
	lvl, _ := parseLevel(s.LogLevel)
	return lvl
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Timezone: DefaultTimezone,
			Auth: AuthConfig{
				Mode:           "jwt",
				RoleHeader:     DefaultRoleHeader,
				HospitalHeader: DefaultHospitalHeader,
			},
			Forecast: ForecastConfig{
				TTL:            DefaultForecastTTL,
				MaxStale:       DefaultMaxStale,
				ComputeTimeout: DefaultComputeTimeout,
			},
			Risk: RiskConfig{
				Elevated: DefaultElevated,
				High:     DefaultHigh,
				Critical: DefaultCritical,
			},
			Planning: PlanningConfig{
				PatientsPerStaff:     DefaultPatientsPerStaff,
				SupplySurgeThreshold: DefaultSupplySurgeThreshold,
			},
			Model: ModelConfig{
				Timeout:      DefaultModelTimeout,
				MaxRetries:   DefaultModelMaxRetries,
				RetryBackoff: DefaultModelRetryBackoff,
				Burst:        1,
			},
			Storage: StorageConfig{
				Driver:  "memory",
				Migrate: true,
			},
			Signals: SignalsConfig{
				Driver: "memory",
				TTL:    DefaultSignalTTL,
			},
			Scheduler: SchedulerConfig{
				Interval: DefaultSchedulerInterval,
				Workers:  DefaultSchedulerWorkers,
			},
			Events: EventsConfig{
				Topic:      DefaultEventsTopic,
				BufferSize: DefaultEventsBuffer,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if _, ok := parseLevel(s.LogLevel); !ok {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("server.timezone %q: %w", s.Timezone, err)
	}

	switch s.Auth.Mode {
	case "jwt":
		if s.Auth.SecretEnv == "" {
			return fmt.Errorf("server.auth.secret_env is required when auth.mode is jwt")
		}
	case "header":
		if s.Auth.RoleHeader == "" || s.Auth.HospitalHeader == "" {
			return fmt.Errorf("server.auth.role_header and hospital_header must not be empty")
		}
	case "none":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want jwt|header|none", s.Auth.Mode)
	}

	f := s.Forecast
	if f.TTL <= 0 {
		return fmt.Errorf("server.forecast.ttl must be positive")
	}
	if f.MaxStale < f.TTL {
		return fmt.Errorf("server.forecast.max_stale (%v) must not be shorter than ttl (%v)", f.MaxStale, f.TTL)
	}
	if f.ComputeTimeout <= 0 {
		return fmt.Errorf("server.forecast.compute_timeout must be positive")
	}

	r := s.Risk
	if !(r.Elevated > 0 && r.Elevated < r.High && r.High < r.Critical && r.Critical <= 1) {
		return fmt.Errorf("server.risk thresholds must satisfy 0 < elevated < high < critical <= 1")
	}
	if s.Planning.PatientsPerStaff <= 0 {
		return fmt.Errorf("server.planning.patients_per_staff must be positive")
	}
	if s.Planning.SupplySurgeThreshold < 0 || s.Planning.SupplySurgeThreshold > 1 {
		return fmt.Errorf("server.planning.supply_surge_threshold must be in [0, 1]")
	}

	m := s.Model
	if m.Timeout <= 0 {
		return fmt.Errorf("server.model.timeout must be positive")
	}
	if m.MaxRetries < 0 || m.MaxRetries > 5 {
		return fmt.Errorf("server.model.max_retries %d is out of range [0, 5]", m.MaxRetries)
	}
	if m.RateLimit < 0 {
		return fmt.Errorf("server.model.rate_limit must not be negative")
	}

	switch s.Storage.Driver {
	case "memory":
	case "postgres":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for the postgres driver")
		}
	default:
		return fmt.Errorf("server.storage.driver %q unknown: want memory|postgres", s.Storage.Driver)
	}

	switch s.Signals.Driver {
	case "memory":
	case "redis":
		if s.Signals.RedisAddr == "" {
			return fmt.Errorf("server.signals.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("server.signals.driver %q unknown: want memory|redis", s.Signals.Driver)
	}
	if s.Signals.TTL < 0 {
		return fmt.Errorf("server.signals.ttl must not be negative")
	}
	for _, d := range s.Signals.Festivals {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("server.signals.festivals: %q is not a YYYY-MM-DD date", d)
		}
	}

	if s.Scheduler.Interval < 0 {
		return fmt.Errorf("server.scheduler.interval must not be negative")
	}
	if s.Scheduler.Workers < 1 {
		return fmt.Errorf("server.scheduler.workers must be at least 1")
	}
	if s.Events.Enabled() && s.Events.Topic == "" {
		return fmt.Errorf("server.events.topic is required when brokers are set")
	}
	if s.Events.BufferSize < 1 {
		return fmt.Errorf("server.events.buffer_size must be at least 1")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}

	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("server.alerts.rules[%d]: severity %q unknown", i, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case WebhookSlack, WebhookTeams, WebhookHTTP:
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
