// Package config loads the server configuration from a YAML file, falling
// back to defaults when no file is given.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// ClientURLs are the origins allowed to reach the server. The first
	// entry doubles as the fallback origin for remote board fetches when a
	// join request carries no Origin header.
	ClientURLs []string `yaml:"client_urls"`

	// HeartbeatMS is the pointer-heartbeat period in milliseconds.
	HeartbeatMS int `yaml:"heartbeat_ms"`

	// DataDir is the runtime data directory (audit journal, index db).
	DataDir string `yaml:"data_dir"`

	// DisableIndex turns off the sqlite session index.
	DisableIndex bool `yaml:"disable_index"`
}

func Defaults() Config {
	return Config{
		Addr:        ":8080",
		ClientURLs:  []string{"http://localhost:3000"},
		HeartbeatMS: 100,
		DataDir:     "./data",
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	out := c.ClientURLs[:0]
	for _, u := range c.ClientURLs {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			out = append(out, u)
		}
	}
	c.ClientURLs = out
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if len(c.ClientURLs) == 0 {
		return fmt.Errorf("client_urls must list at least one origin")
	}
	if c.HeartbeatMS <= 0 {
		return fmt.Errorf("heartbeat_ms must be positive, got %d", c.HeartbeatMS)
	}
	return nil
}

// DefaultOrigin is the origin used for store fetches when the joining
// request did not carry one.
func (c *Config) DefaultOrigin() string {
	return c.ClientURLs[0]
}

// OriginAllowed reports whether origin is in the allow-list.
func (c *Config) OriginAllowed(origin string) bool {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	for _, u := range c.ClientURLs {
		if strings.EqualFold(u, origin) {
			return true
		}
	}
	return false
}
