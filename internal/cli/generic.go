package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ppiankov/nagcheck/internal/checks"
	"github.com/ppiankov/nagcheck/internal/config"
	"github.com/ppiankov/nagcheck/internal/monitor"
	"github.com/ppiankov/nagcheck/internal/status"
)

var genericCmd = &cobra.Command{
	Use:   "generic",
	Short: "Relay the status reported by a JSON status endpoint",
	Long: `Request --target and relay the status it reports. The endpoint answers with

  {"status": "ok|warning|critical|unknown",
   "status-message": "...",
   "additional-messages": ["...", "..."]}

The request time is checked against the thresholds and reported as
performance data.`,
	Example: `  nagcheck generic --target http://localhost:8080/health
  nagcheck generic --target https://svc.example.com/status --request-time-warning 1s`,
	Args: cobra.NoArgs,
	RunE: runGeneric,
}

func init() {
	rootCmd.AddCommand(genericCmd)
	addGenericFlags(genericCmd.Flags())
}

func addGenericFlags(f *pflag.FlagSet) {
	defaults := config.Defaults()
	f.String("target", "", "URL of the status endpoint (http or https)")
	f.Duration("request-time-warning", defaults.Generic.RequestTimeWarning, "Warn when the request takes longer (0 = no limit)")
	f.Duration("request-time-critical", defaults.Generic.RequestTimeCritical, "Critical when the request takes longer (0 = no limit)")
	f.Duration("request-timeout", defaults.Generic.RequestTimeout, "Timeout for the whole request")
}

func runGeneric(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return argumentFailure(cmd, checks.GenericPrefix, err)
	}
	opts, err := genericOptions(cmd, cfg)
	if err != nil {
		return argumentFailure(cmd, checks.GenericPrefix, err)
	}
	return runPlugin(cmd, cfg, plugin{
		name:   "generic",
		prefix: checks.GenericPrefix,
		target: opts.Target,
		build: func(o []checks.Option) (monitor.CheckFunc, error) {
			check := checks.NewGeneric(opts, o...)
			return func(ctx context.Context) (status.Result, error) {
				return check.Run(ctx)
			}, nil
		},
	})
}

// genericOptions merges config defaults with the command flags.
func genericOptions(cmd *cobra.Command, cfg *config.Config) (checks.GenericOptions, error) {
	f := cmd.Flags()
	opts := checks.GenericOptions{
		RequestTimeWarning:  cfg.Generic.RequestTimeWarning,
		RequestTimeCritical: cfg.Generic.RequestTimeCritical,
		RequestTimeout:      cfg.Generic.RequestTimeout,
	}
	opts.Target, _ = f.GetString("target") //nolint:errcheck // flag registered above
	if opts.Target == "" {
		return opts, errors.New("--target is required")
	}

	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"request-time-warning", &opts.RequestTimeWarning},
		{"request-time-critical", &opts.RequestTimeCritical},
		{"request-timeout", &opts.RequestTimeout},
	}
	for _, d := range durations {
		if f.Changed(d.flag) {
			*d.dst, _ = f.GetDuration(d.flag) //nolint:errcheck // flag registered above
		}
	}
	if opts.RequestTimeout <= 0 {
		return opts, errors.New("--request-timeout must be positive")
	}
	return opts, nil
}
