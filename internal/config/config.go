// Package config loads the closer's YAML configuration, applies environment
// overrides and defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"eodcloser/internal/schedule"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the closer.
type Config struct {
	Schedule Schedule `yaml:"schedule"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Telegram Telegram `yaml:"telegram"`
	Trading  Trading  `yaml:"trading"`
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Schedule defines when the daily triggers fire and what drives the ticks.
type Schedule struct {
	Timezone            string `yaml:"timezone"`
	CloseHour           *int   `yaml:"close_hour"`
	CloseMinute         *int   `yaml:"close_minute"`
	PreAlertLeadMinutes int    `yaml:"pre_alert_lead_minutes"`
	WindowMinutes       int    `yaml:"window_minutes"`

	// TickSource is "cron" (a fixed interval) or "bars" (every streamed
	// market-data bar is a tick).
	TickSource      string        `yaml:"tick_source"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	BarSymbols      []string      `yaml:"bar_symbols"`

	// DispatchTimeout bounds one trigger run. Every broker call waits on
	// the Alpaca rate limit, so a run needs about calls/rate_limit_per_min
	// minutes; unset, it is sized for 1000 calls at the configured rate.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	StreamURL       string `yaml:"stream_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Telegram configures operator notifications.
type Telegram struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
	APIURL  string `yaml:"api_url"`
}

// Trading selects the broker implementation.
type Trading struct {
	Broker    string `yaml:"broker"` // "alpaca" or "simulator"
	PaperMode bool   `yaml:"paper_mode"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds the status listener configuration. A zero GRPCPort disables
// the gRPC health service.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

const (
	DefaultTimezone        = "America/New_York"
	DefaultLeadMinutes     = 10
	DefaultTickInterval    = time.Minute
	DefaultDispatchTimeout = 2 * time.Minute

	// dispatchBudgetCalls is the broker request count (two listings plus one
	// call per order and per position) the default dispatch timeout covers.
	dispatchBudgetCalls = 1000

	PaperBaseURL = "https://paper-api.alpaca.markets"
	LiveBaseURL  = "https://api.alpaca.markets"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies a .env
// file (if present), environment overrides and defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	// A missing .env is normal; existing variables are never overwritten.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CLOSER_TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_STREAM_URL"); v != "" {
		cfg.Alpaca.StreamURL = v
	}

	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// The SDK's canonical names win over everything above.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// defaultDispatchTimeout gives a closing run room for dispatchBudgetCalls
// broker requests at the configured pace, never less than
// DefaultDispatchTimeout.
func defaultDispatchTimeout(perMinute int) time.Duration {
	if perMinute <= 0 {
		return DefaultDispatchTimeout
	}
	need := dispatchBudgetCalls * time.Minute / time.Duration(perMinute)
	if need < DefaultDispatchTimeout {
		return DefaultDispatchTimeout
	}
	return need
}

func applyDefaults(cfg *Config) {
	s := &cfg.Schedule
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if s.PreAlertLeadMinutes == 0 {
		s.PreAlertLeadMinutes = DefaultLeadMinutes
	}
	if s.WindowMinutes == 0 {
		s.WindowMinutes = schedule.DefaultWindowMinutes
	}
	s.TickSource = strings.ToLower(s.TickSource)
	if s.TickSource == "" {
		s.TickSource = "cron"
	}
	if s.TickInterval == 0 {
		s.TickInterval = DefaultTickInterval
	}
	if len(s.BarSymbols) == 0 {
		s.BarSymbols = []string{"SPY"}
	}

	if cfg.Trading.Broker == "" {
		cfg.Trading.Broker = "alpaca"
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = LiveBaseURL
		if cfg.Trading.PaperMode {
			cfg.Alpaca.BaseURL = PaperBaseURL
		}
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if s.DispatchTimeout == 0 {
		s.DispatchTimeout = defaultDispatchTimeout(cfg.Alpaca.RateLimitPerMin)
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "eodcloser.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ScheduleConfig converts the schedule section for the scheduler. Missing
// close hour or minute become -1 and fail validation.
func (c *Config) ScheduleConfig() schedule.Config {
	hour, minute := -1, -1
	if c.Schedule.CloseHour != nil {
		hour = *c.Schedule.CloseHour
	}
	if c.Schedule.CloseMinute != nil {
		minute = *c.Schedule.CloseMinute
	}
	return schedule.Config{
		Timezone:      c.Schedule.Timezone,
		CloseHour:     hour,
		CloseMinute:   minute,
		LeadMinutes:   c.Schedule.PreAlertLeadMinutes,
		WindowMinutes: c.Schedule.WindowMinutes,
	}
}

// Validate reports every configuration problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Schedule.CloseHour == nil {
		errs = append(errs, errors.New("schedule.close_hour is required"))
	}
	if c.Schedule.CloseMinute == nil {
		errs = append(errs, errors.New("schedule.close_minute is required"))
	}
	if c.Schedule.CloseHour != nil && c.Schedule.CloseMinute != nil {
		if err := c.ScheduleConfig().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Schedule.TickSource {
	case "cron":
		window := time.Duration(c.Schedule.WindowMinutes) * time.Minute
		if c.Schedule.TickInterval <= 0 || c.Schedule.TickInterval > window {
			errs = append(errs, fmt.Errorf("schedule.tick_interval %s must be positive and no longer than the %s window",
				c.Schedule.TickInterval, window))
		}
	case "bars":
	default:
		errs = append(errs, fmt.Errorf("schedule.tick_source %q must be \"cron\" or \"bars\"", c.Schedule.TickSource))
	}

	needAlpaca := c.Schedule.TickSource == "bars"
	switch c.Trading.Broker {
	case "alpaca":
		needAlpaca = true
	case "simulator":
	default:
		errs = append(errs, fmt.Errorf("trading.broker %q must be \"alpaca\" or \"simulator\"", c.Trading.Broker))
	}
	if needAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		errs = append(errs, errors.New("alpaca.api_key and alpaca.api_secret are required"))
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
		}
		if c.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("telegram.chat_id is required when telegram is enabled"))
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}

	return errors.Join(errs...)
}
