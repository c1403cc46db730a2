// Package config loads bot configuration from an optional YAML file and the
// environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Resolver ResolverConfig `yaml:"resolver"`
	Player   PlayerConfig   `yaml:"player"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type DiscordConfig struct {
	Token                 string `yaml:"token" validate:"required"`
	Status                string `yaml:"status" default:"online" validate:"oneof=online dnd idle invisible"`
	Activity              string `yaml:"activity" default:"music"`
	RegisterCommandsOnBot bool   `yaml:"register_commands_on_bot"`
}

// SpotifyConfig is optional; catalog links are rejected when it is empty.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" default:"US" validate:"omitempty,len=2"`
}

func (s SpotifyConfig) Enabled() bool { return s.ClientID != "" && s.ClientSecret != "" }

type ResolverConfig struct {
	Workers       int           `yaml:"workers" default:"2" validate:"gte=1,lte=32"`
	Timeout       time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	SearchResults int           `yaml:"search_results" default:"5" validate:"gte=1,lte=25"`
	SearchSource  string        `yaml:"search_source" default:"youtube" validate:"oneof=youtube ytmusic ytdlp"`
	Rate          float64       `yaml:"rate" default:"4" validate:"gt=0"`
	Burst         int           `yaml:"burst" default:"4" validate:"gte=1"`
	CookiesPath   string        `yaml:"cookies_path"`
	POToken       string        `yaml:"po_token"`
}

type PlayerConfig struct {
	BatchSize      int           `yaml:"batch_size" default:"5" validate:"gte=1"`
	ProgressEvery  int           `yaml:"progress_every" default:"2" validate:"gte=1"`
	PlaylistLimit  int           `yaml:"playlist_limit" default:"50" validate:"gte=1"`
	IdleDisconnect time.Duration `yaml:"idle_disconnect" default:"5m" validate:"gte=0"`
	StreamTTL      time.Duration `yaml:"stream_ttl" default:"5h" validate:"gt=0"`
	Bitrate        int           `yaml:"bitrate" default:"128000" validate:"gte=8000,lte=512000"`
}

type StorageConfig struct {
	DataDir         string        `yaml:"data_dir" default:"./data" validate:"required"`
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl" default:"1h" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Output string `yaml:"output" default:"stdout"`
}

// Load reads path (when it exists), applies environment overrides, fills
// defaults and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config file %s", path)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "set config defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", cfg.Storage.DataDir)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	return nil
}

func (c *Config) overrideFromEnv() error {
	str := map[string]*string{
		"DISCORD_TOKEN":         &c.Discord.Token,
		"BOT_STATUS":            &c.Discord.Status,
		"BOT_ACTIVITY":          &c.Discord.Activity,
		"SPOTIFY_CLIENT_ID":     &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Spotify.ClientSecret,
		"SEARCH_SOURCE":         &c.Resolver.SearchSource,
		"YOUTUBE_COOKIES_PATH":  &c.Resolver.CookiesPath,
		"YOUTUBE_PO_TOKEN":      &c.Resolver.POToken,
		"DATA_DIR":              &c.Storage.DataDir,
		"LOG_LEVEL":             &c.Log.Level,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("REGISTER_COMMANDS_ON_BOT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "REGISTER_COMMANDS_ON_BOT=%q", v)
		}
		c.Discord.RegisterCommandsOnBot = b
	}
	if v := os.Getenv("RESOLVER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "RESOLVER_TIMEOUT=%q", v)
		}
		c.Resolver.Timeout = d
	}
	if v := os.Getenv("PLAYLIST_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "PLAYLIST_LIMIT=%q", v)
		}
		c.Player.PlaylistLimit = n
	}
	return nil
}
