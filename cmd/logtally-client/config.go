package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logtally/internal/model"
)

const (
	defaultServerAddr   = "127.0.0.1:12345"
	defaultOutDir       = "client_results"
	defaultRetryFor     = 10 * time.Second
	defaultReadTimeout  = 5 * time.Minute
	defaultWriteTimeout = 5 * time.Minute
)

// cliConfig holds only client-relevant configuration. Flags override it.
type cliConfig struct {
	ServerAddr   string        `mapstructure:"server-addr"`
	OutDir       string        `mapstructure:"out-dir"`
	BufferSize   int           `mapstructure:"buffer-size"`
	RetryFor     time.Duration `mapstructure:"retry-for"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	LogLevel     string        `mapstructure:"log-level"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGTALLY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("server-addr", defaultServerAddr)
	v.SetDefault("out-dir", defaultOutDir)
	v.SetDefault("buffer-size", model.DefaultBufferSize)
	v.SetDefault("retry-for", defaultRetryFor)
	v.SetDefault("read-timeout", defaultReadTimeout)
	v.SetDefault("write-timeout", defaultWriteTimeout)
	v.SetDefault("log-level", "warn")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logtally", "client.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.BufferSize <= 0 {
		return cfg, fmt.Errorf("invalid buffer-size: %d", cfg.BufferSize)
	}
	return cfg, nil
}
