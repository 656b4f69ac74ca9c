package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yair/eventfeed/pkg/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Sources SourcesConfig `yaml:"sources"`
	Feed    FeedConfig    `yaml:"feed"`
}

// ServerConfig for HTTP server settings
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type SourcesConfig struct {
	Main      SourceConfig `yaml:"main"`
	Extension SourceConfig `yaml:"extension"`
}

// SourceConfig describes one upstream calendar. PageCeiling is the number of
// pages the source is assumed to have; it is not refreshed from responses.
type SourceConfig struct {
	BaseURL           string  `yaml:"base_url"`
	PageCeiling       int     `yaml:"page_ceiling"`
	PageSize          int     `yaml:"page_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Timeout           int     `yaml:"timeout_seconds"`
	UserAgent         string  `yaml:"user_agent"`
}

// FeedConfig tunes the aggregation cache and pagination coordinator.
type FeedConfig struct {
	TTLMinutes           int    `yaml:"ttl_minutes"`
	SampleSize           int    `yaml:"sample_size"`
	InitialPages         int    `yaml:"initial_pages"`
	CategoryAttempts     int    `yaml:"category_attempts"`
	CategoryTarget       int    `yaml:"category_target"`
	AssumedEventsPerPage int    `yaml:"assumed_events_per_page"`
	LookaheadDays        int    `yaml:"lookahead_days"`
	DescriptionMaxLength int    `yaml:"description_max_length"`
	PageSize             int    `yaml:"page_size"`
	Timezone             string `yaml:"timezone"`
}

// Load reads configuration from file and environment variables.
// A missing file is not an error. .env files are loaded first, then values
// from the environment override the file using the pattern EVENTFEED_SECTION_KEY.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyDefaults(config)

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local then .env.
// godotenv never overrides variables that are already set.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 60
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Sources.Main.PageCeiling == 0 {
		config.Sources.Main.PageCeiling = 62
	}
	if config.Sources.Extension.PageCeiling == 0 {
		config.Sources.Extension.PageCeiling = 23
	}
	for _, src := range []*SourceConfig{&config.Sources.Main, &config.Sources.Extension} {
		if src.RequestsPerSecond == 0 {
			src.RequestsPerSecond = 5
		}
		if src.Timeout == 0 {
			src.Timeout = 30
		}
		if src.UserAgent == "" {
			src.UserAgent = "eventfeed/1.0"
		}
	}

	if config.Feed.TTLMinutes == 0 {
		config.Feed.TTLMinutes = 30
	}
	if config.Feed.SampleSize == 0 {
		config.Feed.SampleSize = 15
	}
	if config.Feed.InitialPages == 0 {
		config.Feed.InitialPages = 2
	}
	if config.Feed.CategoryAttempts == 0 {
		config.Feed.CategoryAttempts = 5
	}
	if config.Feed.CategoryTarget == 0 {
		config.Feed.CategoryTarget = 10
	}
	if config.Feed.AssumedEventsPerPage == 0 {
		config.Feed.AssumedEventsPerPage = 10
	}
	if config.Feed.LookaheadDays == 0 {
		config.Feed.LookaheadDays = 60
	}
	if config.Feed.DescriptionMaxLength == 0 {
		config.Feed.DescriptionMaxLength = 200
	}
	if config.Feed.PageSize == 0 {
		config.Feed.PageSize = 15
	}
	if config.Feed.Timezone == "" {
		config.Feed.Timezone = "Local"
	}
}

func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("EVENTFEED_SERVER_PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("EVENTFEED_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("EVENTFEED_MAIN_BASE_URL"); v != "" {
		config.Sources.Main.BaseURL = v
	}
	if v := os.Getenv("EVENTFEED_EXTENSION_BASE_URL"); v != "" {
		config.Sources.Extension.BaseURL = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"EVENTFEED_MAIN_PAGE_CEILING", &config.Sources.Main.PageCeiling},
		{"EVENTFEED_EXTENSION_PAGE_CEILING", &config.Sources.Extension.PageCeiling},
		{"EVENTFEED_FEED_TTL_MINUTES", &config.Feed.TTLMinutes},
		{"EVENTFEED_FEED_SAMPLE_SIZE", &config.Feed.SampleSize},
		{"EVENTFEED_FEED_LOOKAHEAD_DAYS", &config.Feed.LookaheadDays},
	}
	for _, o := range ints {
		v := os.Getenv(o.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", o.key, err)
		}
		*o.dst = n
	}

	if v := os.Getenv("EVENTFEED_FEED_TIMEZONE"); v != "" {
		config.Feed.Timezone = v
	}
	return nil
}

// TTL returns the freshness window of the top-level cached view.
func (c *FeedConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// LoadLocation resolves the timezone used for "Today"/"Tomorrow" labels and
// the today filter.
func (c *FeedConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid feed.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Source returns the configuration of the named source.
func (c *Config) Source(name string) (SourceConfig, error) {
	switch name {
	case domain.SourceMain:
		return c.Sources.Main, nil
	case domain.SourceExtension:
		return c.Sources.Extension, nil
	}
	return SourceConfig{}, fmt.Errorf("%w: %s", domain.ErrUnknownSource, name)
}

// Validate checks if required configurations are present
func (c *Config) Validate() error {
	var missing []string

	if c.Sources.Main.BaseURL == "" {
		missing = append(missing, "sources.main.base_url")
	}
	if c.Sources.Extension.BaseURL == "" {
		missing = append(missing, "sources.extension.base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Sources.Main.PageCeiling < 1 || c.Sources.Extension.PageCeiling < 1 {
		return domain.ValidationError{Field: "sources.page_ceiling", Message: "must be at least 1"}
	}
	if c.Feed.InitialPages < 1 {
		return domain.ValidationError{Field: "feed.initial_pages", Message: "must be at least 1"}
	}
	if _, err := c.Feed.LoadLocation(); err != nil {
		return err
	}

	return nil
}
