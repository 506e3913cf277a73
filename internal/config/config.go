package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration.
type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Session  SessionConfig
}

// APIConfig holds REST transport settings.
type APIConfig struct {
	URL     string
	Timeout time.Duration
}

// RealtimeConfig holds push-channel settings.
type RealtimeConfig struct {
	URL string
}

// SessionConfig holds persisted-session settings.
type SessionConfig struct {
	StateFile string
}

// Load reads configuration from file and env. Env var overrides use prefix
// LEADSTACK_, e.g. LEADSTACK_API_URL.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("api.url", "http://localhost:4000/api")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("realtime.url", "http://localhost:5000")
	v.SetDefault("session.statefile", filepath.Join(os.Getenv("HOME"), ".config", "leadstack", "session.json"))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEADSTACK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "leadstack"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEADSTACK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 15 * time.Second
	}
	return c, nil
}
