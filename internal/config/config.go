// Package config loads the ort configuration file and resolves the XDG
// directories the client uses.
//
// The file is TOML at $XDG_CONFIG_HOME/ort/config.toml (falling back to
// ~/.config/ort/config.toml). Everything in it is optional; the API key
// may instead come from the OPENROUTER_API_KEY environment variable,
// which wins when both are set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultModel is used when neither the file nor the flags name one.
const DefaultModel = "anthropic/claude-sonnet-4.5"

// DefaultTimeout bounds dialing and socket reads/writes.
const DefaultTimeout = 120 * time.Second

// Config is the parsed configuration.
type Config struct {
	// APIKey is the OpenRouter bearer token.
	APIKey string `toml:"api_key"`

	// Model is the default model identifier.
	Model string `toml:"model"`

	// System is an optional system prompt prepended to conversations.
	System string `toml:"system"`

	// Host overrides the API hostname.
	Host string `toml:"host"`

	// Addrs lists candidate IP addresses for the host, bypassing DNS.
	Addrs []string `toml:"addrs"`

	// TimeoutSeconds overrides the socket timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// VerifyCerts is recognized but rejected: the TLS client has no
	// X.509 pipeline, and pretending to verify would be worse than
	// refusing.
	VerifyCerts *bool `toml:"verify_certs"`
}

// Timeout returns the configured socket timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads the config file at path, or the default location when path
// is empty. A missing default file yields a zero Config; a missing
// explicit file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return applyEnv(&Config{}), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.VerifyCerts != nil && *cfg.VerifyCerts {
		return nil, fmt.Errorf("%s: verify_certs=true is not supported: certificate verification is not implemented", path)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg *Config) *Config {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return cfg
}

// ConfigDir returns the ort configuration directory, honoring
// XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ort"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ort"), nil
}

// StateDir returns the ort state directory (conversation cache), honoring
// XDG_STATE_HOME.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ort"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "ort"), nil
}
