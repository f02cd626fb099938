package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stock_auction/internal/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings of the auction server.
// Values come from defaults, then the YAML file, then AUCTION_* env vars.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Auction   AuctionConfig   `mapstructure:"auction"`
	Catalogue CatalogueConfig `mapstructure:"catalogue"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig configures the TCP listener and per-session limits.
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	OutboxSize   int           `mapstructure:"outbox_size"`
	MaxLineBytes int           `mapstructure:"max_line_bytes"`
}

// AuctionConfig configures the close-timer windows.
type AuctionConfig struct {
	InitialWindow   time.Duration `mapstructure:"initial_window"`
	ExtensionWindow time.Duration `mapstructure:"extension_window"`
}

type CatalogueConfig struct {
	Path string `mapstructure:"path"`
}

// FeedConfig enables the HTTP observer feed when ListenAddr is set.
type FeedConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// JournalConfig enables the SQLite bid journal when Path is set.
type JournalConfig struct {
	Path      string `mapstructure:"path"`
	QueueSize int    `mapstructure:"queue_size"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "auctiond")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.listen_addr", "localhost:2022")
	v.SetDefault("server.idle_timeout", 10*time.Minute)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.outbox_size", 64)
	v.SetDefault("server.max_line_bytes", 4096)

	v.SetDefault("auction.initial_window", 300*time.Second)
	v.SetDefault("auction.extension_window", 60*time.Second)

	v.SetDefault("catalogue.path", "configs/stocks.csv")

	v.SetDefault("feed.listen_addr", "")

	v.SetDefault("journal.path", "")
	v.SetDefault("journal.queue_size", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "logs/auctiond.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// LoadConfig reads the YAML file at path. An empty path uses defaults and
// environment only.
func LoadConfig(path string) (*Config, error) {
	// A .env file is optional; real env vars win over it.
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &domain.ConfigError{Field: "file", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Server
	if c.Server.ListenAddr == "" {
		return &domain.ConfigError{Field: "server.listen_addr", Err: errors.New("must not be empty")}
	}
	if c.Server.IdleTimeout < 0 {
		return &domain.ConfigError{Field: "server.idle_timeout", Err: errors.New("must not be negative")}
	}
	if c.Server.WriteTimeout < 0 {
		return &domain.ConfigError{Field: "server.write_timeout", Err: errors.New("must not be negative")}
	}
	if c.Server.OutboxSize <= 0 {
		return &domain.ConfigError{Field: "server.outbox_size", Err: errors.New("must be positive")}
	}
	if c.Server.MaxLineBytes < 64 {
		return &domain.ConfigError{Field: "server.max_line_bytes", Err: errors.New("must be at least 64")}
	}

	// Auction
	if c.Auction.InitialWindow <= 0 {
		return &domain.ConfigError{Field: "auction.initial_window", Err: errors.New("must be positive")}
	}
	if c.Auction.ExtensionWindow <= 0 {
		return &domain.ConfigError{Field: "auction.extension_window", Err: errors.New("must be positive")}
	}

	if c.Catalogue.Path == "" {
		return &domain.ConfigError{Field: "catalogue.path", Err: errors.New("must not be empty")}
	}
	if c.Journal.Path != "" && c.Journal.QueueSize <= 0 {
		return &domain.ConfigError{Field: "journal.queue_size", Err: errors.New("must be positive")}
	}

	if _, ok := parseLevel(c.Logging.Level); !ok {
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
