// Package config loads the YAML configuration and fills in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoScopes is returned when no scope is configured and none can be
// discovered.
var ErrNoScopes = errors.New("no scopes configured")

const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 15 * time.Second
	DefaultExcerptChars = 220
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultBackoff      = 500 * time.Millisecond
	DefaultMaxBackoff   = 5 * time.Second
	DefaultUserAgent    = "go-station-timeline"
	DefaultRowLimit     = 500
	DefaultScopeField   = "station_slug"
	DefaultRedisChannel = "station-timeline"
	DefaultServerAddr   = ":8085"
	DefaultLogLevel     = "info"
	DefaultLogFile      = "~/.go-station-timeline/logs/app.log"
)

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Refresh struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	Deduplicate  bool          `yaml:"deduplicate"`
}

type Timeline struct {
	Limit        int    `yaml:"limit"` // 0 = unlimited
	ExcerptChars int    `yaml:"excerpt_chars"`
	Timezone     string `yaml:"timezone"`
}

type StoreSource struct {
	Dir string `yaml:"dir"`
}

type HTTPSource struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	UserAgent  string        `yaml:"user_agent"`
}

// PostgresTable maps one table onto raw records. Type is injected into rows
// that carry no type column of their own.
type PostgresTable struct {
	Table       string `yaml:"table"`
	Type        string `yaml:"type"`
	ScopeColumn string `yaml:"scope_column"`
	TimeColumn  string `yaml:"time_column"`
}

type PostgresSource struct {
	DSN      string          `yaml:"dsn"`
	Tables   []PostgresTable `yaml:"tables"`
	RowLimit int             `yaml:"row_limit"`
}

type Sources struct {
	Store    StoreSource    `yaml:"store"`
	HTTP     HTTPSource     `yaml:"http"`
	Postgres PostgresSource `yaml:"postgres"`
}

type WatchNotifier struct {
	Enabled bool `yaml:"enabled"`
}

type KafkaNotifier struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	GroupID    string   `yaml:"group_id"`
	ScopeField string   `yaml:"scope_field"`
}

type RedisNotifier struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type Notifiers struct {
	Watch WatchNotifier `yaml:"watch"`
	Kafka KafkaNotifier `yaml:"kafka"`
	Redis RedisNotifier `yaml:"redis"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Log       Log       `yaml:"log"`
	Scopes    []string  `yaml:"scopes"`
	Refresh   Refresh   `yaml:"refresh"`
	Timeline  Timeline  `yaml:"timeline"`
	Sources   Sources   `yaml:"sources"`
	Notifiers Notifiers `yaml:"notifiers"`
	Server    Server    `yaml:"server"`
}

// Load reads a YAML file. Defaults are applied by Validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &c, nil
}

// Validate fills defaults and rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}

	c.Scopes = cleanList(c.Scopes)

	if c.Refresh.PollInterval == 0 {
		c.Refresh.PollInterval = DefaultPollInterval
	}
	if c.Refresh.PollInterval < 0 {
		return fmt.Errorf("refresh.poll_interval must be positive, got %s", c.Refresh.PollInterval)
	}
	if c.Refresh.FetchTimeout == 0 {
		c.Refresh.FetchTimeout = DefaultFetchTimeout
	}
	if c.Refresh.FetchTimeout < 0 {
		return fmt.Errorf("refresh.fetch_timeout must be positive, got %s", c.Refresh.FetchTimeout)
	}

	if c.Timeline.Limit < 0 {
		c.Timeline.Limit = 0
	}
	if c.Timeline.ExcerptChars <= 0 {
		c.Timeline.ExcerptChars = DefaultExcerptChars
	}
	if c.Timeline.Timezone == "" {
		c.Timeline.Timezone = "Local"
	}

	h := &c.Sources.HTTP
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.Timeout == 0 {
		h.Timeout = DefaultHTTPTimeout
	}
	if h.MaxRetries == 0 {
		h.MaxRetries = DefaultMaxRetries
	}
	if h.Backoff == 0 {
		h.Backoff = DefaultBackoff
	}
	if h.MaxBackoff == 0 {
		h.MaxBackoff = DefaultMaxBackoff
	}
	if h.UserAgent == "" {
		h.UserAgent = DefaultUserAgent
	}

	pg := &c.Sources.Postgres
	if pg.RowLimit <= 0 {
		pg.RowLimit = DefaultRowLimit
	}
	if pg.DSN != "" && len(pg.Tables) == 0 {
		return errors.New("sources.postgres.tables must list at least one table when dsn is set")
	}
	for i, t := range pg.Tables {
		if t.Table == "" || t.ScopeColumn == "" {
			return fmt.Errorf("sources.postgres.tables[%d]: table and scope_column are required", i)
		}
	}

	k := &c.Notifiers.Kafka
	k.Brokers = cleanList(k.Brokers)
	if len(k.Brokers) > 0 {
		if k.Topic == "" {
			return errors.New("notifiers.kafka.topic is required when brokers are set")
		}
		if k.GroupID == "" {
			k.GroupID = DefaultUserAgent
		}
		if k.ScopeField == "" {
			k.ScopeField = DefaultScopeField
		}
	}

	if c.Notifiers.Redis.Addr != "" && c.Notifiers.Redis.Channel == "" {
		c.Notifiers.Redis.Channel = DefaultRedisChannel
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	return nil
}

// HasSource reports whether at least one retrieval source is configured.
func (c *Config) HasSource() bool {
	return c.Sources.Store.Dir != "" || c.Sources.HTTP.BaseURL != "" || c.Sources.Postgres.DSN != ""
}

// HasPushNotifier reports whether a change feed is configured. Polling is
// only the fallback cadence when none is.
func (c *Config) HasPushNotifier() bool {
	return c.Notifiers.Watch.Enabled || len(c.Notifiers.Kafka.Brokers) > 0 || c.Notifiers.Redis.Addr != ""
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
