// Package config loads Depot configuration from an optional YAML file,
// DEPOT_-prefixed environment variables, and built-in defaults, and wraps
// the result in a nil-safe accessor handed to modules.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe read-only view over a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps a viper instance. A nil viper yields a Config that returns
// zero values for every key.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Load reads configuration from path (optional; empty means defaults and
// environment only) and returns the underlying viper instance for the
// registry to slice into per-module sections.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DEPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return v, nil
			}
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("storage.path", "depot.db")

	v.SetDefault("modules.inventory.enabled", true)
	v.SetDefault("modules.inventory.page_size", 20)
	v.SetDefault("modules.inventory.max_page_size", 100)

	v.SetDefault("modules.notify.enabled", false)
	v.SetDefault("modules.notify.broker", "tcp://localhost:1883")
	v.SetDefault("modules.notify.client_id", "depot")
	v.SetDefault("modules.notify.qos", 1)
	v.SetDefault("modules.notify.connect_timeout", "10s")
	v.SetDefault("modules.notify.publish_timeout", "5s")
}

// GetString returns the string value for key, or "" if unset.
func (c *Config) GetString(key string) string {
	if c == nil || c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// GetInt returns the int value for key, or 0 if unset.
func (c *Config) GetInt(key string) int {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

// GetBool returns the bool value for key, or false if unset.
func (c *Config) GetBool(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

// GetDuration returns the duration value for key, or 0 if unset.
func (c *Config) GetDuration(key string) time.Duration {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

// IsSet reports whether key has a value.
func (c *Config) IsSet(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the Config subtree rooted at key. Missing keys yield an
// empty (never nil) Config.
func (c *Config) Sub(key string) *Config {
	if c == nil || c.v == nil {
		return New(nil)
	}
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Unmarshal decodes the configuration into target.
func (c *Config) Unmarshal(target any) error {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}
