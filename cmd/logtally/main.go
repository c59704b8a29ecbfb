package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath, writeConfigPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logtally/config.yml)")
	flag.StringVar(&writeConfigPath, "write-config", "", "write a config file with default values to this path and exit")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("logtally - log aggregation server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	if writeConfigPath != "" {
		if err := writeDefaultConfig(writeConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", writeConfigPath)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newViper(home string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LOGTALLY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("port", defaultPort)
	v.SetDefault("results-dir", defaultResultsDir)
	v.SetDefault("uploads-dir", defaultUploadsDir)
	v.SetDefault("max-connections", defaultMaxConnections)
	v.SetDefault("read-timeout", defaultReadTimeout)
	v.SetDefault("write-timeout", defaultWriteTimeout)
	v.SetDefault("max-name-bytes", defaultMaxNameBytes)
	v.SetDefault("max-string-bytes", defaultMaxStringBytes)
	v.SetDefault("max-payload-bytes", defaultMaxPayloadBytes)
	v.SetDefault("max-files", defaultMaxFiles)
	v.SetDefault("max-summary-bytes", defaultMaxSummaryBytes)
	v.SetDefault("history-enabled", true)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "logtally", "history.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("retention-schedule", defaultRetentionCron)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	return v
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := newViper(home)
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logtally", "config.yml"))
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
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in db-path
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}

	if cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.Port))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func (c appConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.APIEnabled && (c.APIPort <= 0 || c.APIPort > 65535) {
		return fmt.Errorf("invalid api-port: %d", c.APIPort)
	}
	if c.ResultsDir == "" {
		return errors.New("results-dir must not be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("invalid max-connections: %d", c.MaxConnections)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("invalid retention-days: %d", c.RetentionDays)
	}
	return nil
}

// writeDefaultConfig writes every default setting as YAML. Durations are
// written in their string form so the file round-trips through viper.
func writeDefaultConfig(path string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("finding home directory: %w", err)
	}
	settings := newViper(home).AllSettings()
	for k, val := range settings {
		if d, ok := val.(time.Duration); ok {
			settings[k] = d.String()
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
