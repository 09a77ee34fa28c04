package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"TrafficFeeds/internal/catalog"
	"TrafficFeeds/internal/domain"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "TRAFFICFEEDS_CONFIG"
	logLevelEnv     = "TRAFFICFEEDS_LOG_LEVEL"
	logFormatEnv    = "TRAFFICFEEDS_LOG_FORMAT"
	modeEnv         = "TRAFFICFEEDS_MODE"
	httpAddrEnv     = "TRAFFICFEEDS_HTTP_ADDR"
	baseURLEnv      = "TRAFFICFEEDS_BASE_URL"
)

// Run modes.
const (
	ModeOnce  = "once"
	ModeWatch = "watch"
	ModeServe = "serve"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Selection SelectionConfig `yaml:"selection"`
	Export    ExportConfig    `yaml:"export"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Mode      string          `yaml:"mode" validate:"oneof=once watch serve"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// FeedsConfig describes how the CWWP2 feeds are reached.
type FeedsConfig struct {
	BaseURL           string        `yaml:"baseUrl" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent         string        `yaml:"userAgent"`
	MaxInFlight       int           `yaml:"maxInFlight" validate:"gte=1,lte=64"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
}

// SelectionConfig is the initial selection. Types, when set, wins over Mask.
type SelectionConfig struct {
	Mask      *int     `yaml:"mask" validate:"omitempty,gte=0,lte=63"`
	Types     []string `yaml:"types"`
	Districts []int    `yaml:"districts" validate:"required,min=1,dive,gte=1,lte=12"`
}

// ExportConfig sets where text exports go.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when watch/serve refreshes run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Resolve turns the configured selection into domain values.
func (s SelectionConfig) Resolve() (domain.Selection, []domain.District, error) {
	var (
		sel domain.Selection
		err error
	)
	switch {
	case len(s.Types) > 0:
		sel, err = domain.ParseSelection(s.Types)
	case s.Mask != nil:
		sel, err = domain.SelectionFromMask(*s.Mask)
	default:
		sel, err = domain.SelectionFromMask(63)
	}
	if err != nil {
		return 0, nil, err
	}

	districts, err := domain.DistrictsFromInts(s.Districts)
	if err != nil {
		return 0, nil, err
	}
	return sel, districts, nil
}

// Load reads YAML configuration (path, or $TRAFFICFEEDS_CONFIG when empty) over the
// defaults, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and that the selection resolves.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()+paramSuffix(fe.Param())))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, _, err := c.Selection.Resolve(); err != nil {
		return fmt.Errorf("invalid config: selection: %w", err)
	}
	return nil
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(modeEnv); v != "" {
		c.Mode = strings.ToLower(v)
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(baseURLEnv); v != "" {
		c.Feeds.BaseURL = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func defaultConfig() Config {
	mask := 63
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Feeds: FeedsConfig{
			BaseURL:      catalog.DefaultBaseURL,
			Timeout:      20 * time.Second,
			UserAgent:    "TrafficFeeds/1.0",
			MaxInFlight:  8,
			MaxBodyBytes: 32 << 20,
		},
		Selection: SelectionConfig{Mask: &mask, Districts: []int{1}},
		Export:    ExportConfig{Path: "data_out.txt"},
		Scheduler: SchedulerConfig{CronExpression: "*/5 * * * *", Timezone: defaultTimezone, location: time.UTC},
		Server:    ServerConfig{Addr: ":8080"},
		Mode:      ModeOnce,
	}
}
