package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ppiankov/nagcheck/internal/checks"
	"github.com/ppiankov/nagcheck/internal/config"
	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/monitor"
	"github.com/ppiankov/nagcheck/internal/status"
)

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Check an HTTP or HTTPS site on every address it resolves to",
	Long: `Resolve --address to its IPv4 addresses and request --path from each one,
sending --hostname as SNI and Host header.

Every address is checked for the expected status code, headers and body
text, the response time, and (with --secure) the remaining validity of the
peer certificate.`,
	Example: `  # Basic HTTPS check
  nagcheck http --address example.com --secure

  # Check one backend address with a virtual host name
  nagcheck http --address 10.0.0.12 --hostname www.example.com --secure

  # Expect a redirect and a header
  nagcheck http --address example.com --expect-status-code 301 \
    --expect-header "Location: https://example.com/"

  # POST with a body and response time thresholds
  nagcheck http --address api.example.com --secure --method POST --path /ping \
    --body '{}' --response-time-warning 500ms --response-time-critical 2s`,
	Args: cobra.NoArgs,
	RunE: runHTTP,
}

func init() {
	rootCmd.AddCommand(httpCmd)
	addHTTPFlags(httpCmd.Flags())
}

func addHTTPFlags(f *pflag.FlagSet) {
	defaults := config.Defaults()
	f.String("address", "", "Hostname or IPv4 address to resolve and check")
	f.String("hostname", "", "Hostname for SNI and the Host header (default: --address)")
	f.Int("port", 0, "Port (default: 80, or 443 with --secure)")
	f.Bool("secure", false, "Use TLS")
	f.String("method", string(httpconn.MethodGet), "Request method: GET, POST")
	f.String("path", "/", "Request path and query")
	f.StringArray("send-header", nil, "Request header 'name: value' (repeatable)")
	f.String("body", "", "Request body for POST")
	f.IntSlice("expect-status-code", []int{200}, "Acceptable status codes")
	f.StringArray("expect-header", nil, "Required response header 'name: value' (repeatable)")
	f.String("expect-body-text", "", "Text the response body must contain")
	f.Duration("response-time-warning", defaults.HTTP.ResponseTimeWarning, "Warn when a request takes longer (0 = no limit)")
	f.Duration("response-time-critical", defaults.HTTP.ResponseTimeCritical, "Critical when a request takes longer (0 = no limit)")
	f.Duration("cert-warning", defaults.HTTP.CertWarning, "Warn when the certificate expires within this duration")
	f.Duration("cert-critical", defaults.HTTP.CertCritical, "Critical when the certificate expires within this duration")
	f.Bool("check-revocation", defaults.HTTP.CheckRevocation, "Check OCSP and CRLs for the leaf certificate of secure targets")
	f.Duration("timeout", defaults.HTTP.Timeout, "Overall timeout for each address")
}

func runHTTP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return argumentFailure(cmd, checks.HTTPPrefix, err)
	}
	opts, err := httpOptions(cmd, cfg)
	if err != nil {
		return argumentFailure(cmd, checks.HTTPPrefix, err)
	}
	return runPlugin(cmd, cfg, plugin{
		name:   "http",
		prefix: checks.HTTPPrefix,
		target: opts.Address,
		build: func(o []checks.Option) (monitor.CheckFunc, error) {
			check := checks.NewHTTP(opts, o...)
			return func(ctx context.Context) (status.Result, error) {
				return check.Run(ctx)
			}, nil
		},
	})
}

// httpOptions merges config defaults with the command flags.
func httpOptions(cmd *cobra.Command, cfg *config.Config) (checks.HTTPOptions, error) {
	f := cmd.Flags()
	opts := checks.HTTPOptions{
		ResponseTimeWarning:  cfg.HTTP.ResponseTimeWarning,
		ResponseTimeCritical: cfg.HTTP.ResponseTimeCritical,
		CertWarning:          cfg.HTTP.CertWarning,
		CertCritical:         cfg.HTTP.CertCritical,
		CheckRevocation:      cfg.HTTP.CheckRevocation,
		Timeout:              cfg.HTTP.Timeout,
	}
	opts.Address, _ = f.GetString("address")                        //nolint:errcheck // flag registered above
	opts.Hostname, _ = f.GetString("hostname")                      //nolint:errcheck // flag registered above
	opts.Port, _ = f.GetInt("port")                                 //nolint:errcheck // flag registered above
	opts.Secure, _ = f.GetBool("secure")                            //nolint:errcheck // flag registered above
	opts.Path, _ = f.GetString("path")                              //nolint:errcheck // flag registered above
	opts.ExpectStatusCodes, _ = f.GetIntSlice("expect-status-code") //nolint:errcheck // flag registered above
	opts.ExpectBodyText, _ = f.GetString("expect-body-text")        //nolint:errcheck // flag registered above

	if opts.Address == "" {
		return opts, errors.New("--address is required")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return opts, errors.New("--port must be between 0 and 65535 (0 = scheme default)")
	}

	methodStr, _ := f.GetString("method") //nolint:errcheck // flag registered above
	method, err := httpconn.ParseMethod(methodStr)
	if err != nil {
		return opts, err
	}
	opts.Method = method

	body, _ := f.GetString("body") //nolint:errcheck // flag registered above
	if body != "" {
		if method != httpconn.MethodPost {
			return opts, errors.New("--body requires --method POST")
		}
		opts.Body = []byte(body)
	}

	sendHeaders := cfg.HTTP.SendHeaders
	if f.Changed("send-header") {
		sendHeaders, _ = f.GetStringArray("send-header") //nolint:errcheck // flag registered above
	}
	if opts.SendHeaders, err = checks.ParseHeaders(sendHeaders); err != nil {
		return opts, err
	}
	expectHeaders, _ := f.GetStringArray("expect-header") //nolint:errcheck // flag registered above
	if opts.ExpectHeaders, err = checks.ParseHeaders(expectHeaders); err != nil {
		return opts, err
	}

	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"response-time-warning", &opts.ResponseTimeWarning},
		{"response-time-critical", &opts.ResponseTimeCritical},
		{"cert-warning", &opts.CertWarning},
		{"cert-critical", &opts.CertCritical},
		{"timeout", &opts.Timeout},
	}
	for _, d := range durations {
		if f.Changed(d.flag) {
			*d.dst, _ = f.GetDuration(d.flag) //nolint:errcheck // flag registered above
		}
	}
	if f.Changed("check-revocation") {
		opts.CheckRevocation, _ = f.GetBool("check-revocation") //nolint:errcheck // flag registered above
	}
	if opts.Timeout <= 0 {
		return opts, errors.New("--timeout must be positive")
	}
	if opts.CertWarning > 0 && opts.CertCritical >= opts.CertWarning {
		return opts, errors.New("--cert-critical must be less than --cert-warning")
	}
	return opts, nil
}

// argumentFailure reports options that could not be turned into a check,
// in plugin format, and exits unknown.
func argumentFailure(cmd *cobra.Command, prefix string, err error) error {
	format, _ := cmd.Flags().GetString("output") //nolint:errcheck // flag registered above
	res := monitor.ArgumentError(prefix, err)
	if werr := monitor.Write(cmd.OutOrStdout(), format, res); werr != nil {
		return werr
	}
	return &exitError{code: monitor.ExitCode(res)}
}
