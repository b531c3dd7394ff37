// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Storage  StorageConfig
	Fetcher  FetcherConfig
	Queue    QueueConfig
	Poller   PollerConfig
	Ops      OpsConfig
	Logging  LoggingConfig
	Operator OperatorConfig
}

// StorageConfig contains paths for the persisted JSON stores and artifact
// directories.
type StorageConfig struct {
	UsersFile         string
	CacheIndexFile    string
	SubscriptionsFile string
	CacheDir          string
	DownloadDir       string
}

// FetcherConfig contains retrieval provider configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type FetcherConfig struct {
	BinaryPath      string
	CookiesFiles    []string
	PoolSize        int
	MaxArtifactSize int64
	SocketTimeout   time.Duration
}

// QueueConfig contains job queue and delivery configuration.
type QueueConfig struct {
	SendTimeout    time.Duration
	StatusThrottle time.Duration
	InterJobPause  time.Duration
}

// PollerConfig contains subscription polling configuration.
type PollerConfig struct {
	CheckInterval time.Duration
	ErrorBackoff  time.Duration
	FetchCount    int
	TokenTTL      time.Duration
}

// OpsConfig contains the operations HTTP server configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type OpsConfig struct {
	APIKeys         []string
	Port            int
	ShutdownTimeout time.Duration
}

// OperatorConfig identifies the operator notification channel.
type OperatorConfig struct {
	ChatID int64
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BOT")

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Storage
	viper.SetDefault("storage.usersfile", "users.json")
	viper.SetDefault("storage.cacheindexfile", "video_cache.json")
	viper.SetDefault("storage.subscriptionsfile", "subscriptions.json")
	viper.SetDefault("storage.cachedir", "video_cache")
	viper.SetDefault("storage.downloaddir", "downloads")

	// Fetcher
	viper.SetDefault("fetcher.binarypath", "yt-dlp")
	viper.SetDefault("fetcher.cookiesfiles", []string{"cookies.txt"})
	viper.SetDefault("fetcher.poolsize", 3)
	viper.SetDefault("fetcher.maxartifactsize", int64(50*1024*1024)) // 50 MB
	viper.SetDefault("fetcher.sockettimeout", 30*time.Second)

	// Queue
	viper.SetDefault("queue.sendtimeout", 300*time.Second)
	viper.SetDefault("queue.statusthrottle", 5*time.Second)
	viper.SetDefault("queue.interjobpause", 1*time.Second)

	// Poller
	viper.SetDefault("poller.checkinterval", 1*time.Hour)
	viper.SetDefault("poller.errorbackoff", 5*time.Minute)
	viper.SetDefault("poller.fetchcount", 5)
	viper.SetDefault("poller.tokenttl", 1*time.Hour)

	// Ops server
	viper.SetDefault("ops.port", 8080)
	viper.SetDefault("ops.shutdowntimeout", 30*time.Second)
	viper.SetDefault("ops.apikeys", []string{})

	// Operator channel
	viper.SetDefault("operator.chatid", int64(0))

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
