package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/ishmumzaman/studysync-v0.1.0-alpha/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   API base URL (default from Config)
//	-d string   data directory (default from Config)
//	-t int      request timeout in seconds (default from Config)
//	-l string   log level (default from Config)
//
// Only these flags are looked at; args is filtered with flagx.FilterArgs so
// the -c/-config flag of the JSON loader does not interfere.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-t", "-l"})

	fs := flag.NewFlagSet("studysync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "API base URL")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *requestTimeout <= 0 {
		return fmt.Errorf("parse flags: request timeout must be positive, got %d", *requestTimeout)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	return nil
}
