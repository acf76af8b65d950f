package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/flagx"
	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify timeouts either as
// strings like "30s" or as integer nanoseconds.
type JsonConfig struct {
	ServerBaseURL       string         `json:"server_base_url"`
	DataDir             string         `json:"data_dir"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	AuthCallTimeout     timex.Duration `json:"auth_call_timeout"`
	RefreshWaitTimeout  timex.Duration `json:"refresh_wait_timeout"`
	MaxTransportRetries *int           `json:"max_transport_retries"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays Config with values from the JSON file named by -c or
// -config. Without either flag nothing happens. Fields missing from the file
// keep their current value.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerBaseURL != "" {
		cfg.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.AuthCallTimeout.Duration > 0 {
		cfg.AuthCallTimeout = jc.AuthCallTimeout.Duration
	}
	if jc.RefreshWaitTimeout.Duration > 0 {
		cfg.RefreshWaitTimeout = jc.RefreshWaitTimeout.Duration
	}
	if jc.MaxTransportRetries != nil {
		if *jc.MaxTransportRetries < 0 {
			return fmt.Errorf("parse config %s: max_transport_retries must not be negative", path)
		}
		cfg.MaxTransportRetries = *jc.MaxTransportRetries
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	return nil
}
