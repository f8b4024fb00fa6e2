// Package config loads runtime settings from a YAML file and the
// environment. Environment variables win over the file, and the file wins
// over the built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/shawcc/trumpsword/internal/domain"
)

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Port int `yaml:"port"`

	// Schedule is the standard five-field cron spec for automatic
	// collection. Empty disables the scheduler.
	Schedule string `yaml:"schedule"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type MeegleConfig struct {
	BaseURL     string        `yaml:"base_url"`
	TokenURL    string        `yaml:"token_url"`
	AppID       string        `yaml:"app_id"`
	AppSecret   string        `yaml:"app_secret"`
	ProjectKey  string        `yaml:"project_key"`
	TokenMargin time.Duration `yaml:"token_margin"`

	// TypeMap pins internal event types to tracker type keys.
	TypeMap map[string]string `yaml:"type_map"`

	// Transitions maps event type -> workflow node -> tracker transition id.
	Transitions map[string]map[string]string `yaml:"transitions"`
}

type NATSConfig struct {
	URL string `yaml:"url"` // empty disables notifications
}

type CongressConfig struct {
	Enabled bool   `yaml:"enabled"`
	FeedURL string `yaml:"feed_url"`
}

type WhiteHouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type TruthSocialConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Account string `yaml:"account"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type SourcesConfig struct {
	Congress    CongressConfig    `yaml:"congress"`
	WhiteHouse  WhiteHouseConfig  `yaml:"whitehouse"`
	TruthSocial TruthSocialConfig `yaml:"truth_social"`
	Telegram    TelegramConfig    `yaml:"telegram"`

	UserAgent  string        `yaml:"user_agent"`
	MaxRetries int           `yaml:"max_retries"`
	MaxPages   int           `yaml:"max_pages"`  // historical crawl cap per source
	PageDelay  time.Duration `yaml:"page_delay"` // pause between historical pages
}

type CollectorConfig struct {
	RetryBatch int `yaml:"retry_batch"`
}

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Meegle    MeegleConfig    `yaml:"meegle"`
	NATS      NATSConfig      `yaml:"nats"`
	Sources   SourcesConfig   `yaml:"sources"`
	Collector CollectorConfig `yaml:"collector"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "trumpsword.db"},
		Server: ServerConfig{
			Port:            3001,
			Schedule:        "0 * * * *",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{Model: "gpt-4o", Timeout: 60 * time.Second},
		Meegle: MeegleConfig{
			BaseURL:     "https://project.feishu.cn/open_api",
			TokenURL:    "https://project.feishu.cn/open_api/authen/plugin_token",
			TokenMargin: 5 * time.Minute,
		},
		Sources: SourcesConfig{
			Congress:    CongressConfig{Enabled: true},
			WhiteHouse:  WhiteHouseConfig{Enabled: true},
			TruthSocial: TruthSocialConfig{Enabled: true},
			Telegram:    TelegramConfig{Enabled: true},
			MaxRetries:  3,
			MaxPages:    10,
			PageDelay:   time.Second,
		},
		Collector: CollectorConfig{RetryBatch: 50},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file. Empty environment
// variables count as unset.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"DATABASE_PATH":      &c.Database.Path,
		"OPENAI_API_KEY":     &c.LLM.APIKey,
		"OPENAI_BASE_URL":    &c.LLM.BaseURL,
		"OPENAI_MODEL":       &c.LLM.Model,
		"MEEGLE_API_BASE":    &c.Meegle.BaseURL,
		"MEEGLE_AUTH_URL":    &c.Meegle.TokenURL,
		"MEEGLE_APP_ID":      &c.Meegle.AppID,
		"MEEGLE_APP_SECRET":  &c.Meegle.AppSecret,
		"MEEGLE_PROJECT_KEY": &c.Meegle.ProjectKey,
		"NATS_URL":           &c.NATS.URL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MEEGLE_TYPE_MAP"); ok && v != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return fmt.Errorf("MEEGLE_TYPE_MAP: %w", err)
		}
		c.Meegle.TypeMap = m
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Schedule != "" {
		if _, err := cron.ParseStandard(c.Server.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("server.schedule: %w", err))
		}
	}
	for typ := range c.Meegle.TypeMap {
		if !domain.EventType(typ).Valid() {
			errs = append(errs, fmt.Errorf("meegle.type_map: unknown event type %q", typ))
		}
	}
	for typ := range c.Meegle.Transitions {
		if !domain.EventType(typ).Valid() {
			errs = append(errs, fmt.Errorf("meegle.transitions: unknown event type %q", typ))
		}
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
