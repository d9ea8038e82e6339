// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg holds the typed configuration for a mount: cache location,
// retry/locking bounds, logging, and the ranker's resident-inode budget. It
// is bound from flags, environment variables and an optional YAML file via
// spf13/pflag and spf13/viper.
package cfg

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogRotateConfig mirrors the knobs gopkg.in/natefinch/lumberjack.v2
// exposes for the log file internal/logger writes to.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

// DefaultLogRotateConfig returns the rotation policy used when the user
// does not override it.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	FilePath    ResolvedPath    `mapstructure:"file-path"`
	Format      string          `mapstructure:"format"`
	Severity    LogSeverity     `mapstructure:"severity"`
	LogRotation LogRotateConfig `mapstructure:"log-rotate"`
}

// Config is the top-level configuration for a mount.
type Config struct {
	Bucket     string       `mapstructure:"bucket"`
	MountPoint ResolvedPath `mapstructure:"mount-point"`
	CacheDir   ResolvedPath `mapstructure:"cache-dir"`

	Logging LoggingConfig `mapstructure:"logging"`

	// FileMode and DirMode are applied to newly created cache entries.
	FileMode Octal `mapstructure:"file-mode"`
	DirMode  Octal `mapstructure:"dir-mode"`

	// RankerBudget is the number of resident (hydrated) inodes the LRU
	// ranker allows before nominating victims for dehydration.
	RankerBudget int `mapstructure:"ranker-budget"`
	// RankerIntervalSeconds is, in seconds, how often the background worker
	// sweeps for victims.
	RankerIntervalSeconds int `mapstructure:"ranker-interval-seconds"`

	// MaxRetries bounds path-lock acquisition attempts for ordinary
	// filesystem callbacks; UnlinkMaxRetries bounds it for unlink
	// specifically, which the design intentionally gives up on sooner.
	MaxRetries       int `mapstructure:"max-retries"`
	UnlinkMaxRetries int `mapstructure:"unlink-max-retries"`

	// RemoteEndpoint is the base URL of the remote object store serving
	// this mount's bucket.
	RemoteEndpoint string `mapstructure:"remote-endpoint"`

	// MetricsPort, when positive, serves Prometheus metrics on
	// localhost:<port>/metrics.
	MetricsPort int `mapstructure:"metrics-port"`
}

// BindFlags registers every Config field except the log-rotation settings
// as a pflag flag on fs, with defaults matching Default(). Call viper.BindPFlags(fs) afterward to wire
// flag values into a viper instance that also reads env vars and a config
// file.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("bucket", d.Bucket, "name of the remote bucket to mount")
	fs.String("mount-point", string(d.MountPoint), "local directory to mount onto")
	fs.String("cache-dir", string(d.CacheDir), "local directory backing the cache")
	fs.String("log-file", string(d.Logging.FilePath), "path to the log file; empty logs to stderr")
	fs.String("log-format", d.Logging.Format, `log format, "text" or "json"`)
	fs.String("log-severity", string(d.Logging.Severity), "minimum log severity to emit")
	fs.String("file-mode", fmt.Sprintf("%o", int(d.FileMode)), "octal permission mode for new cache files")
	fs.String("dir-mode", fmt.Sprintf("%o", int(d.DirMode)), "octal permission mode for new cache directories")
	fs.Int("ranker-budget", d.RankerBudget, "number of resident inodes the ranker tolerates before evicting")
	fs.Int("ranker-interval-seconds", d.RankerIntervalSeconds, "seconds between ranker eviction sweeps")
	fs.Int("max-retries", d.MaxRetries, "path-lock acquisition retry budget for filesystem callbacks")
	fs.Int("unlink-max-retries", d.UnlinkMaxRetries, "path-lock acquisition retry budget for unlink")
	fs.String("remote-endpoint", d.RemoteEndpoint, "base URL of the remote object store")
	fs.Int("metrics-port", d.MetricsPort, "port to serve Prometheus metrics on; 0 disables")
}

// Default returns the configuration used when no flag, env var or config
// file overrides a field.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Format:      "text",
			Severity:    InfoLogSeverity,
			LogRotation: DefaultLogRotateConfig(),
		},
		FileMode:              0o644,
		DirMode:               0o755,
		RankerBudget:          10000,
		RankerIntervalSeconds: 30,
		MaxRetries:            100,
		UnlinkMaxRetries:      10,
	}
}

// Load builds a Config from fs's bound flags, environment variables
// prefixed ZEROFUSE_, and configPath if non-empty.
func Load(fs *pflag.FlagSet, configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZEROFUSE")
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("binding flags: %w", err)
	}
	// The logging flags are flat on the command line but nested in the
	// struct; bind them to their dotted keys explicitly.
	for flagName, key := range map[string]string{
		"log-file":     "logging.file-path",
		"log-format":   "logging.format",
		"log-severity": "logging.severity",
	} {
		if f := fs.Lookup(flagName); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag %s: %w", flagName, err)
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", configPath, err)
		}
	}

	cfg := Default()
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}
