// Package config loads and validates the external configuration described
// in SPEC_FULL.md §6: listen address, alias/real domain map, HTTPS-forced
// list, authorization settings, and the ambient logging/timeout/upstream
// knobs this Go rendition adds. Both config.yaml and config.toml are
// accepted, per spec.md §6's "default config.yaml/config.toml" and
// SPEC_FULL.md §2 (item 9)'s extension-sniffing fallback.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/webjingzi/mirror/internal/alias"
)

// Account is a configured username/password pair.
type Account struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Authorization is the optional auth-gate configuration.
type Authorization struct {
	Enabled    bool      `yaml:"enabled" toml:"enabled"`
	DomainList []string  `yaml:"domain_list" toml:"domain_list"`
	Account    []Account `yaml:"account" toml:"account"`
}

// Upstream holds the ADDED SOCKS5-relay knob recovered from
// original_source's socks5_server field.
type Upstream struct {
	Socks5Address string `yaml:"socks5_address" toml:"socks5_address"`
}

// Timeouts holds the ADDED connect/request deadline knobs spec.md §5
// leaves unmandated.
type Timeouts struct {
	ConnectMS int `yaml:"connect_ms" toml:"connect_ms"`
	RequestMS int `yaml:"request_ms" toml:"request_ms"`
}

// Log holds the ADDED ambient logging knobs.
type Log struct {
	Verbose       bool   `yaml:"verbose" toml:"verbose"`
	JSON          bool   `yaml:"json" toml:"json"`
	Dir           string `yaml:"dir" toml:"dir"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
}

// Config is the parsed external configuration file.
type Config struct {
	ListenAddress string            `yaml:"listen_address" toml:"listen_address"`
	DataDir       string            `yaml:"data_dir" toml:"data_dir"`
	DomainName    map[string]string `yaml:"domain_name" toml:"domain_name"`
	UseHTTPS      []string          `yaml:"use_https" toml:"use_https"`
	Authorization Authorization     `yaml:"authorization" toml:"authorization"`
	Upstream      Upstream          `yaml:"upstream" toml:"upstream"`
	Timeouts      Timeouts          `yaml:"timeouts" toml:"timeouts"`
	Log           Log               `yaml:"log" toml:"log"`
}

// Load reads path and parses it as YAML or TOML depending on its
// extension: ".toml" is parsed with go-toml, everything else (including
// the canonical ".yaml"/".yml") with yaml.v3.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var c Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks required fields and alias non-containment, returning the
// first error encountered.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("config: listen_address is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if len(c.DomainName) == 0 {
		return fmt.Errorf("config: domain_name must have at least one alias")
	}
	if _, err := c.AliasEntries(); err != nil {
		return err
	}
	if c.Authorization.Enabled && len(c.Authorization.Account) == 0 {
		return fmt.Errorf("config: authorization.enabled requires at least one account")
	}
	return nil
}

// AliasEntries converts DomainName into alias.Entry values and validates
// them via alias.Build, surfacing ConflictingAliasesError as a ConfigError.
func (c *Config) AliasEntries() ([]alias.Entry, error) {
	entries := make([]alias.Entry, 0, len(c.DomainName))
	for a, real := range c.DomainName {
		entries = append(entries, alias.Entry{Alias: a, Real: real})
	}
	if _, err := alias.Build(entries); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return entries, nil
}

// ConnectTimeout returns the configured connect timeout, defaulting to 30s
// per spec.md §5's suggested sane default.
func (c *Config) ConnectTimeout() time.Duration {
	if c.Timeouts.ConnectMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeouts.ConnectMS) * time.Millisecond
}

// RequestTimeout returns the configured total-request timeout, or 0 (no
// limit) if unset, matching spec.md §5's "no idle limit" default.
func (c *Config) RequestTimeout() time.Duration {
	if c.Timeouts.RequestMS <= 0 {
		return 0
	}
	return time.Duration(c.Timeouts.RequestMS) * time.Millisecond
}
