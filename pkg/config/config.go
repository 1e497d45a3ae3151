package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Telegram struct {
		Token         string `yaml:"token" json:"token" jsonschema:"description=Telegram bot token (can use environment variable)"`
		UpdateTimeout int    `yaml:"update_timeout" json:"update_timeout" jsonschema:"default=60,description=Long-poll timeout in seconds"`
	} `yaml:"telegram" json:"telegram" jsonschema:"description=Telegram transport configuration"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Status server configuration"`

	Storage struct {
		DataFile string `yaml:"data_file" json:"data_file" jsonschema:"default=feedbot.json,description=Path of the persisted feed set"`
	} `yaml:"storage" json:"storage" jsonschema:"description=Persistence configuration"`

	Feeds struct {
		HistorySize   int           `yaml:"history_size" json:"history_size" jsonschema:"default=200,description=Capacity of the seen-entry history"`
		StoryLimit    int           `yaml:"story_limit" json:"story_limit" jsonschema:"default=5,description=Default number of stories per dump"`
		DefaultAgeMin float64       `yaml:"default_age_minutes" json:"default_age_minutes" jsonschema:"default=90,description=Age filter window seeded on new feeds in minutes"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" jsonschema:"default=30s,description=Feed fetch timeout"`
		UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=feedbot/1.0,description=User agent for feed requests"`
	} `yaml:"feeds" json:"feeds" jsonschema:"description=Feed handling configuration"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied, used when no config
// file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Telegram.UpdateTimeout == 0 {
		c.Telegram.UpdateTimeout = 60
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Storage.DataFile == "" {
		c.Storage.DataFile = "feedbot.json"
	}

	if c.Feeds.HistorySize == 0 {
		c.Feeds.HistorySize = 200
	}
	if c.Feeds.StoryLimit == 0 {
		c.Feeds.StoryLimit = 5
	}
	if c.Feeds.DefaultAgeMin == 0 {
		c.Feeds.DefaultAgeMin = 90
	}
	if c.Feeds.FetchTimeout == 0 {
		c.Feeds.FetchTimeout = 30 * time.Second
	}
	if c.Feeds.UserAgent == "" {
		c.Feeds.UserAgent = "feedbot/1.0"
	}
}
