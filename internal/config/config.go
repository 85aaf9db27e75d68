// Package config loads BandAid configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"bandaid.yaml",
	"bandaid.yml",
	"/etc/bandaid/bandaid.yaml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "BANDAID_CONFIG"

// envPrefix is stripped from environment variables before mapping them to
// koanf paths: BANDAID_SERVER_ADDR -> server.addr.
const envPrefix = "BANDAID_"

// Config holds all runtime configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	DB      DBConfig      `koanf:"db"`
	Blob    BlobConfig    `koanf:"blob"`
	Spotify SpotifyConfig `koanf:"spotify"`
	AI      AIConfig      `koanf:"ai"`
	Logging LoggingConfig `koanf:"logging"`
	Brand   string        `koanf:"brand"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	ExternalURL string `koanf:"external_url"`
}

// DBConfig configures the PostgreSQL connection.
type DBConfig struct {
	URL string `koanf:"url"`
}

// BlobConfig configures the blob store and the public hosts that serve its
// two buckets.
type BlobConfig struct {
	Dir               string `koanf:"dir"`
	PublicUploadsHost string `koanf:"public_uploads_host"`
	PublicPostersHost string `koanf:"public_posters_host"`
}

// SpotifyConfig holds Spotify application credentials.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// AIConfig configures the OpenAI-compatible endpoint used for poster
// extraction, rotation inference, and description summarization.
type AIConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	VisionModel    string `koanf:"vision_model"`
	SummarizeModel string `koanf:"summarize_model"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			ExternalURL: "http://127.0.0.1:8080",
		},
		Blob: BlobConfig{
			Dir:               "data/blobs",
			PublicUploadsHost: "uploads.bandaid.example",
			PublicPostersHost: "posters.bandaid.example",
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com/v1",
			VisionModel:    "gpt-5",
			SummarizeModel: "gpt-4.1-mini",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Brand: "BandAid",
	}
}

// Load reads configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DB.URL == "" {
		return errors.New("db.url is required (BANDAID_DB_URL)")
	}
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return errors.New("spotify.client_id and spotify.client_secret are required")
	}
	if c.AI.APIKey == "" {
		return errors.New("ai.api_key is required")
	}
	return nil
}

// RedirectURL returns the OAuth callback URL derived from the external URL.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.Server.ExternalURL, "/") + "/spotify/callback"
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
