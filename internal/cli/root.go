// Package cli provides the nagcheck CLI commands.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/config"
)

var version = "dev"
var commit = "none"
var date = "unknown"

// SetBuildInfo sets the version info (called from main).
func SetBuildInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

var rootCmd = &cobra.Command{
	Use:   "nagcheck",
	Short: "Monitoring plugin checks for HTTP services",
	Long: `nagcheck runs monitoring-plugin style health checks against HTTP and HTTPS
services.

Each check prints one status line ("PREFIX STATUS: message | perfdata"),
optional detail lines, and exits 0 (ok), 1 (warning), 2 (critical) or
3 (unknown).`,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd)
	},
}

func init() {
	defaults := config.Defaults()
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("otel-endpoint", "", "OTLP gRPC endpoint for tracing (e.g. localhost:4317)")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this node-exporter textfile")
	rootCmd.PersistentFlags().String("history-db", "", "Record results in this SQLite database")
	rootCmd.PersistentFlags().String("socks5", "", "Dial targets through a SOCKS5 proxy (host:port)")
	rootCmd.PersistentFlags().String("root-ca-file", "", "PEM bundle used instead of the system roots")
	rootCmd.PersistentFlags().StringP("output", "o", defaults.Output, "Output format: text, json")
}

// setupLogging installs the default slog handler. Logs go to stderr; stdout
// carries plugin output only.
func setupLogging(cmd *cobra.Command) error {
	levelStr, _ := cmd.Flags().GetString("log-level")   //nolint:errcheck // flag registered above
	formatStr, _ := cmd.Flags().GetString("log-format") //nolint:errcheck // flag registered above

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch formatStr {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	default:
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig reads --config when given and applies the persistent flags on
// top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Defaults()
	cfgPath, _ := cmd.Flags().GetString("config") //nolint:errcheck // flag registered above
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"otel-endpoint", &cfg.OTelEndpoint},
		{"metrics-file", &cfg.MetricsFile},
		{"history-db", &cfg.HistoryDB},
		{"socks5", &cfg.SOCKS5},
		{"root-ca-file", &cfg.RootCAFile},
		{"output", &cfg.Output},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.dst, _ = cmd.Flags().GetString(o.flag) //nolint:errcheck // flag registered above
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitError carries a non-zero plugin exit code out of a command after its
// deferred cleanup has run.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck // best-effort output
	return 3
}
