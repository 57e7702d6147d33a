// Package config provides YAML-based configuration loading for Matinee.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Matinee configuration, loaded from matinee.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Discord   DiscordConfig   `yaml:"discord"`
	Plex      PlexConfig      `yaml:"plex"`
	Sonarr    ArrConfig       `yaml:"sonarr"`
	Radarr    ArrConfig       `yaml:"radarr"`
	Assistant AssistantConfig `yaml:"assistant"`
	Web       WebConfig       `yaml:"web"`
	Audit     AuditConfig     `yaml:"audit"`
}

// DatabaseConfig selects and configures the GORM backend. The sqlite driver
// is the default for single-box installs; mysql is available for shared
// deployments.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
}

// DiscordConfig holds bot-connection and channel-monitoring settings.
type DiscordConfig struct {
	BotToken       string   `yaml:"bot_token"`
	SupportChannel string   `yaml:"support_channel"`
	AllowedThreads []string `yaml:"allowed_threads"`
	AdminContact   string   `yaml:"admin_contact"` // shown when no media server is configured
}

// PlexConfig seeds the active PlexServer row at migrate time.
type PlexConfig struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ArrConfig holds a Sonarr or Radarr endpoint.
type ArrConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// AssistantConfig configures the chat-completion backend (any
// OpenAI-compatible /v1/chat/completions endpoint).
type AssistantConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// WebConfig configures the read-only status server.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AuditConfig controls audit-log retention.
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "matinee.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "matinee"
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = "gpt-4o-mini"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8484
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
	if c.Discord.AdminContact == "" {
		c.Discord.AdminContact = "your server admin"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Database.Driver != "sqlite" && c.Database.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.Discord.BotToken == "" {
		errs = append(errs, "discord.bot_token is required")
	}
	if c.Assistant.BaseURL == "" {
		errs = append(errs, "assistant.base_url is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
