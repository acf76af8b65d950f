package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the StudySync client.
//
// Fields:
//   - ServerBaseURL: root of the REST API, including the /api prefix.
//   - DataDir: directory for the encrypted credential database and device key.
//   - RequestTimeout: overall bound for one API call, refresh and retry included.
//   - AuthCallTimeout: bound for each call to the /auth endpoints.
//   - RefreshWaitTimeout: how long a request waits for an in-flight refresh.
//   - MaxTransportRetries: extra attempts for transient failures of idempotent calls.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerBaseURL       string
	DataDir             string
	RequestTimeout      time.Duration
	AuthCallTimeout     time.Duration
	RefreshWaitTimeout  time.Duration
	MaxTransportRetries int
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080/api"
	c.DataDir = ".studysync"
	c.RequestTimeout = 30 * time.Second
	c.AuthCallTimeout = 10 * time.Second
	c.RefreshWaitTimeout = 15 * time.Second
	c.MaxTransportRetries = 2
	c.LogLevel = "info"
}

// DBPath is the credential database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "credentials.db")
}

// DeviceKeyPath is the device secret file inside DataDir.
func (c *Config) DeviceKeyPath() string {
	return filepath.Join(c.DataDir, "device.key")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones. args are the program arguments without the
// program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
