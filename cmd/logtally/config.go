package main

import (
	"time"

	"github.com/tinytelemetry/logtally/internal/model"
)

const (
	defaultBindHost        = "0.0.0.0"
	defaultPort            = model.DefaultPort
	defaultResultsDir      = model.DefaultResultsDir
	defaultUploadsDir      = model.DefaultUploadsDir
	defaultAPIPort         = 3000
	defaultMaxConnections  = 64
	defaultReadTimeout     = 5 * time.Minute
	defaultWriteTimeout    = 5 * time.Minute
	defaultQueryTimeout    = 30 * time.Second
	defaultRetentionDays   = 0 // days, 0 = disabled
	defaultRetentionCron   = "@hourly"
	defaultMaxNameBytes    = 4096
	defaultMaxStringBytes  = 64 * 1024
	defaultMaxPayloadBytes = 256 * 1024 * 1024
	defaultMaxFiles        = 1024
	defaultMaxSummaryBytes = 256 * 1024 * 1024
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Port              int           `mapstructure:"port"`
	Addr              string        `mapstructure:"addr"`
	ResultsDir        string        `mapstructure:"results-dir"`
	UploadsDir        string        `mapstructure:"uploads-dir"`
	MaxConnections    int           `mapstructure:"max-connections"`
	ReadTimeout       time.Duration `mapstructure:"read-timeout"`
	WriteTimeout      time.Duration `mapstructure:"write-timeout"`
	MaxNameBytes      uint32        `mapstructure:"max-name-bytes"`
	MaxStringBytes    uint32        `mapstructure:"max-string-bytes"`
	MaxPayloadBytes   uint64        `mapstructure:"max-payload-bytes"`
	MaxFiles          uint32        `mapstructure:"max-files"`
	MaxSummaryBytes   uint32        `mapstructure:"max-summary-bytes"`
	HistoryEnabled    bool          `mapstructure:"history-enabled"`
	DBPath            string        `mapstructure:"db-path"`
	QueryTimeout      time.Duration `mapstructure:"query-timeout"`
	APIEnabled        bool          `mapstructure:"api-enabled"`
	APIPort           int           `mapstructure:"api-port"`
	APIAddr           string        `mapstructure:"api-addr"`
	RetentionDays     int           `mapstructure:"retention-days"`
	RetentionSchedule string        `mapstructure:"retention-schedule"`
	LogLevel          string        `mapstructure:"log-level"`
	LogFormat         string        `mapstructure:"log-format"`
	ConfigPath        string        `mapstructure:"-"` // not from config file
}
