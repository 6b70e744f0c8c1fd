package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/c360/twinstreams"
)

// commandFlags carries the options every subcommand shares. Values fall
// back to TWINCTL_* environment variables, then to defaults.
type commandFlags struct {
	flagSet *flag.FlagSet

	configPath string
	logLevel   string
	logFormat  string
	timeout    time.Duration
}

func newCommandFlags(name, usage string) *commandFlags {
	f := &commandFlags{flagSet: flag.NewFlagSet(name, flag.ContinueOnError)}

	f.flagSet.StringVar(&f.configPath, "config",
		getEnv("TWINCTL_CONFIG", "twinctl.yaml"),
		"Path to configuration file (env: TWINCTL_CONFIG)")

	f.flagSet.StringVar(&f.logLevel, "log-level",
		getEnv("TWINCTL_LOG_LEVEL", "warn"),
		"Log level: debug, info, warn, error (env: TWINCTL_LOG_LEVEL)")

	f.flagSet.StringVar(&f.logFormat, "log-format",
		getEnv("TWINCTL_LOG_FORMAT", "text"),
		"Log format: json, text (env: TWINCTL_LOG_FORMAT)")

	f.flagSet.DurationVar(&f.timeout, "timeout",
		getEnvDuration("TWINCTL_TIMEOUT", 0),
		"Request timeout, 0 to use the configuration (env: TWINCTL_TIMEOUT)")

	f.flagSet.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s %s\n\nOptions:\n", appName, usage)
		f.flagSet.PrintDefaults()
	}
	return f
}

// connect builds a client from the loaded configuration and the shared
// flags, then establishes the transport connection.
func (f *commandFlags) connect(ctx context.Context) (*twinstreams.Client, error) {
	logger := setupLogger(f.logLevel, f.logFormat)
	slog.SetDefault(logger)

	cfg, err := twinstreams.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	opts := []twinstreams.Option{twinstreams.WithLogger(logger)}
	if f.timeout > 0 {
		opts = append(opts, twinstreams.WithDefaultTimeout(f.timeout))
	}
	client, err := twinstreams.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - digital twin command line client

Usage: %s <command> [options] [arguments]

Commands:
  retrieve <thing-id>                  Print a thing as JSON
  watch <thing-id>                     Stream change events, one JSON line each
  search [--filter expr]               Stream search results as JSON lines
  message <thing-id> <subject> [body]  Send a message to or from a thing
  validate                             Check the configuration file and exit
  version                              Show version information
  help                                 Show this help

Examples:
  # Read a twin
  %s retrieve org.acme/sensor-1

  # Follow live events with text logs
  %s watch --channel=live --log-level=info org.acme/sensor-1

  # Search a namespace, two hundred things at most
  %s search --namespaces=org.acme --filter='eq(attributes/site,"plant-7")' --limit=200

  # Ask a thing to reboot and wait for the answer
  %s message --reply org.acme/sensor-1 reboot '{"delay": 5}'

The configuration file is YAML; see the repository documentation for the
format. Set TWINCTL_CONFIG to avoid repeating --config.
`, appName, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
