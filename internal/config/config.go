// Package config loads shelf settings from a YAML file, SHELF_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
)

// EnvPrefix prefixes every environment variable, e.g. SHELF_BACKEND.
const EnvPrefix = "SHELF"

// DefaultFile is looked up in the working directory when no file is named.
const DefaultFile = "shelf.yaml"

// Backends lists the accepted values of the backend key.
var Backends = []string{"memory", "file", "bolt", "sqlite"}

// Config is the resolved configuration.
type Config struct {
	// Backend selects the store: memory, file, bolt or sqlite.
	Backend string `mapstructure:"backend"`
	// Path is the data directory (file) or database file (bolt, sqlite).
	Path string `mapstructure:"path"`
	// Schema is a .cue file or directory declaring the collections.
	Schema string `mapstructure:"schema"`
	// Collection names the collection to operate on.
	Collection string `mapstructure:"collection"`
	// IDStrategy is uuid, content or supplied.
	IDStrategy string `mapstructure:"id_strategy"`
	// Cache puts an in-memory copy in front of a persistent backend.
	Cache bool `mapstructure:"cache"`

	StrictFetchMany     bool `mapstructure:"strict_fetch_many"`
	IgnoreMissingDelete bool `mapstructure:"ignore_missing_delete"`

	LogLevel string `mapstructure:"log_level"`
	// Metrics instruments the store and reports counters on exit.
	Metrics bool `mapstructure:"metrics"`
}

var defaults = map[string]any{
	"backend":               "memory",
	"path":                  "",
	"schema":                "schema",
	"collection":            "",
	"id_strategy":           "uuid",
	"cache":                 false,
	"strict_fetch_many":     false,
	"ignore_missing_delete": false,
	"log_level":             "info",
	"metrics":               false,
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config file. When empty, DefaultFile is used if
	// it exists.
	File string

	// Flags, when set, override file and environment values for every key
	// whose flag (key with "_" written as "-") was given on the command line.
	Flags *pflag.FlagSet
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for key := range defaults {
			if f := opts.Flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that viper cannot.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case "memory":
	case "file", "bolt", "sqlite":
		if c.Path == "" {
			errs = append(errs, fmt.Errorf("backend %s requires path", c.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(Backends, ", ")))
	}
	if _, err := ident.Parse(c.IDStrategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Cache && c.Backend == "memory" {
		errs = append(errs, fmt.Errorf("cache has no effect on the memory backend"))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Policy returns the fetch-many and delete choices.
func (c *Config) Policy() dao.Policy {
	return dao.Policy{
		StrictFetchMany:     c.StrictFetchMany,
		IgnoreMissingDelete: c.IgnoreMissingDelete,
	}
}

// Generator returns the id strategy.
func (c *Config) Generator() (ident.Generator, error) {
	return ident.Parse(c.IDStrategy)
}
