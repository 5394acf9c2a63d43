// Package config loads pledge server settings from a YAML file and the
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable, e.g. PLEDGE_LISTEN_ADDR.
const EnvPrefix = "PLEDGE"

// Eligibility backends.
const (
	EligibilityStatic = "static"
	EligibilityFile   = "file"
	EligibilityHTTP   = "http"
	EligibilityRedis  = "redis"
)

// Journal backends.
const (
	JournalMemory = "memory"
	JournalFile   = "file"
	JournalBadger = "badger"
	JournalRedis  = "redis"
)

// EligibilityConfig selects the eligibility oracle and its parameters.
type EligibilityConfig struct {
	Backend string `yaml:"backend"`
	// Accounts is the allow-list for the static backend.
	Accounts []string `yaml:"accounts"`
	File     string   `yaml:"file"`
	URL      string   `yaml:"url"`
	RedisKey string   `yaml:"redisKey" split_words:"true"`
}

// JournalConfig selects where committed operations are recorded.
type JournalConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Config holds the pledge server settings.
type Config struct {
	ListenAddr string `yaml:"listenAddr" split_words:"true"`

	// Owner is the admin subject (a did:key). When empty it is derived from
	// the key in OwnerKey.
	Owner string `yaml:"owner"`

	// OwnerKey is a JWK file path or an http(s) URL of a JSON Web Key Set.
	OwnerKey string `yaml:"ownerKey" split_words:"true"`

	RedisAddr   string `yaml:"redisAddr"   split_words:"true"`
	LogLevel    string `yaml:"logLevel"    split_words:"true"`
	EventBuffer int    `yaml:"eventBuffer" split_words:"true"`

	Eligibility EligibilityConfig `yaml:"eligibility"`
	Journal     JournalConfig     `yaml:"journal"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8080",
		LogLevel:    "info",
		EventBuffer: 1024,
		Eligibility: EligibilityConfig{
			Backend:  EligibilityStatic,
			RedisKey: "pledge:eligible",
		},
		Journal: JournalConfig{
			Backend:   JournalMemory,
			Namespace: "default",
		},
	}
}

// Load returns the defaults overlaid with configFile (if set) and then with
// PLEDGE_* environment variables.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backends are known and have what they need.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listenAddr is required"))
	}
	if c.Owner == "" && c.OwnerKey == "" {
		errs = append(errs, errors.New("one of owner or ownerKey is required"))
	}
	if c.EventBuffer < 0 {
		errs = append(errs, errors.New("eventBuffer cannot be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Eligibility.Backend {
	case EligibilityStatic:
		for _, a := range c.Eligibility.Accounts {
			if _, err := crypto.ParseAddress(a); err != nil {
				errs = append(errs, fmt.Errorf("eligibility.accounts: %w", err))
			}
		}
	case EligibilityFile:
		if c.Eligibility.File == "" {
			errs = append(errs, errors.New("eligibility.file is required for the file backend"))
		}
	case EligibilityHTTP:
		if c.Eligibility.URL == "" {
			errs = append(errs, errors.New("eligibility.url is required for the http backend"))
		}
	case EligibilityRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redisAddr is required for the redis eligibility backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown eligibility backend %q", c.Eligibility.Backend))
	}

	switch c.Journal.Backend {
	case JournalMemory:
	case JournalFile, JournalBadger:
		if c.Journal.Path == "" {
			errs = append(errs, fmt.Errorf("journal.path is required for the %s backend", c.Journal.Backend))
		}
	case JournalRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redisAddr is required for the redis journal backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal backend %q", c.Journal.Backend))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// EligibleAccounts parses the static allow-list. Call Validate first.
func (c *Config) EligibleAccounts() []crypto.Address {
	out := make([]crypto.Address, 0, len(c.Eligibility.Accounts))
	for _, a := range c.Eligibility.Accounts {
		if addr, err := crypto.ParseAddress(a); err == nil {
			out = append(out, addr)
		}
	}
	return out
}
