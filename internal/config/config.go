// Package config handles dialogs configuration file parsing.
//
// The YAML file contains:
//
//	server_url: "ws://host/ws"    - Backend WebSocket endpoint
//	auth_token: "..."             - Authentication token
//	push_token: "..."             - Push delivery token
//	log_level: "info"             - debug, info, warn or error
//	log_file: ""                  - JSON log file; stderr text when empty
//	dial_timeout: 10s             - Bound on one connection attempt
//	reconnect:                    - Backoff after unsolicited disconnects
//	  enabled: true
//	  base_delay: 1s
//	  max_delay: 30s
//	  max_attempts: 10
//	listen: ":8080"               - Reference backend listen address
//	database: ""                  - Reference backend SQLite path; memory when empty
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file name.
const FileName = "dialogs.yaml"

// Environment variables overriding file values.
const (
	EnvServerURL = "DIALOGS_SERVER_URL"
	EnvAuthToken = "DIALOGS_AUTH_TOKEN"
	EnvPushToken = "DIALOGS_PUSH_TOKEN"
	EnvLogLevel  = "DIALOGS_LOG_LEVEL"
	EnvListen    = "DIALOGS_LISTEN"
	EnvDatabase  = "DIALOGS_DATABASE"
)

// Reconnect configures the reconnect backoff.
type Reconnect struct {
	Enabled     bool          `yaml:"enabled"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Config represents the dialogs configuration file.
type Config struct {
	ServerURL   string        `yaml:"server_url"`
	AuthToken   string        `yaml:"auth_token"`
	PushToken   string        `yaml:"push_token"`
	LogLevel    string        `yaml:"log_level"`
	LogFile     string        `yaml:"log_file,omitempty"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Reconnect   Reconnect     `yaml:"reconnect"`
	Listen      string        `yaml:"listen"`
	Database    string        `yaml:"database,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ServerURL:   "ws://localhost:8080/ws",
		LogLevel:    "info",
		DialTimeout: 10 * time.Second,
		Reconnect: Reconnect{
			Enabled:     true,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 10,
		},
		Listen: ":8080",
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for env, field := range map[string]*string{
		EnvServerURL: &c.ServerURL,
		EnvAuthToken: &c.AuthToken,
		EnvPushToken: &c.PushToken,
		EnvLogLevel:  &c.LogLevel,
		EnvListen:    &c.Listen,
		EnvDatabase:  &c.Database,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks the client fields.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server_url %q: %w", c.ServerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server_url %q: scheme must be ws or wss", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server_url %q: missing host", c.ServerURL)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("invalid dial_timeout %s: must not be negative", c.DialTimeout)
	}
	r := c.Reconnect
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return errors.New("invalid reconnect delays: must not be negative")
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("invalid reconnect.max_delay %s: below base_delay %s", r.MaxDelay, r.BaseDelay)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("invalid reconnect.max_attempts %d: must not be negative", r.MaxAttempts)
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
