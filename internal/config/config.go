// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

// Package config loads runtime settings from the XDG config file and
// command-line flags, flags winning.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/edupulse/edupulse/internal/xdg"
)

// FileName is the config file looked up under the XDG config directory.
const FileName = "config.yaml"

// Config is the resolved runtime configuration.
type Config struct {
	API      APIConfig      `koanf:"api"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type RealtimeConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":  "http://localhost:8080/api",
		"api.timeout":   30 * time.Second,
		"realtime.path": "/realtime",
		"log.format":    "text",
		"metrics.addr":  "",
	}
}

// Load resolves configuration in precedence order: defaults, then the
// YAML file under the XDG config directory, then flags. A missing file
// is not an error; a malformed one is.
func Load(flags *pflag.FlagSet) (*Config, error) {
	return load(filepath.Join(xdg.ConfigDir(), FileName), flags)
}

func load(path string, flags *pflag.FlagSet) (*Config, error) {
	errb := oops.In("config").With("path", path)

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errb.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errb.Code("CONFIG_FILE_INVALID").Wrap(err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errb.Code("CONFIG_FILE_UNREADABLE").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, errb.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errb.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if cfg.API.BaseURL == "" {
		return nil, errb.Code("CONFIG_API_BASE_MISSING").
			Errorf("api.base_url must be set")
	}
	return &cfg, nil
}

// RegisterFlags declares the flags that override file settings. Flag
// names double as koanf keys.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("api.base_url", "", "base URL of the EduPulse API")
	flags.Duration("api.timeout", 0, "request timeout")
	flags.String("realtime.path", "", "push channel path on the API host")
	flags.String("log.format", "", "log output format (text or json)")
	flags.String("metrics.addr", "", "metrics listen address (empty disables)")
}
