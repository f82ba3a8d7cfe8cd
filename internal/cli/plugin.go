package cli

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/checks"
	"github.com/ppiankov/nagcheck/internal/config"
	"github.com/ppiankov/nagcheck/internal/history"
	"github.com/ppiankov/nagcheck/internal/httpconn"
	"github.com/ppiankov/nagcheck/internal/metrics"
	"github.com/ppiankov/nagcheck/internal/monitor"
	"github.com/ppiankov/nagcheck/internal/probe"
	"github.com/ppiankov/nagcheck/internal/status"
	"github.com/ppiankov/nagcheck/internal/telemetry"
)

// plugin describes one check invocation.
type plugin struct {
	name   string // metric and history label, e.g. "http"
	prefix string
	target string
	// build turns the parsed options into the check. An error is an argument error.
	build func(opts []checks.Option) (monitor.CheckFunc, error)
}

// runPlugin runs p with the ambient stack around it: tracing, metrics,
// history and output. The exit code travels back to Execute as an exitError.
func runPlugin(cmd *cobra.Command, cfg *config.Config, p plugin) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, elapsed := execute(ctx, cfg, p)

	if err := monitor.Write(cmd.OutOrStdout(), cfg.Output, res); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if code := monitor.ExitCode(res); code != 0 {
		return &exitError{code: code}
	}
	slog.Debug("check finished", "check", p.name, "elapsed", elapsed)
	return nil
}

func execute(ctx context.Context, cfg *config.Config, p plugin) (status.Result, time.Duration) {
	tracer, shutdown, err := telemetry.InitTracer(ctx, cfg.OTelEndpoint, telemetry.ServiceName, version)
	if err != nil {
		slog.Warn("initializing tracer", "err", err)
	} else {
		defer shutdown(context.Background()) //nolint:errcheck // best-effort flush
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	connOpts, err := connOptions(cfg)
	if err != nil {
		return monitor.ArgumentError(p.prefix, err), 0
	}
	if tracer != nil {
		connOpts = append(connOpts, httpconn.WithTracer(tracer))
	}
	fn, err := p.build([]checks.Option{
		checks.WithConnOptions(connOpts...),
		checks.WithObserver(collector),
	})
	if err != nil {
		return monitor.ArgumentError(p.prefix, err), 0
	}

	start := time.Now()
	var res status.Result
	if tracer != nil {
		spanCtx, span := telemetry.StartCheck(ctx, tracer, p.name, p.target)
		res = monitor.Run(spanCtx, p.prefix, fn)
		telemetry.EndCheck(span, res)
	} else {
		res = monitor.Run(ctx, p.prefix, fn)
	}
	elapsed := time.Since(start)

	collector.RecordResult(p.name, p.target, res, elapsed)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, reg); err != nil {
			slog.Warn("writing metrics textfile", "path", cfg.MetricsFile, "err", err)
		}
	}
	if cfg.HistoryDB != "" {
		recordHistory(cfg.HistoryDB, p, res, start, elapsed)
	}
	return res, elapsed
}

func recordHistory(path string, p plugin, res status.Result, at time.Time, elapsed time.Duration) {
	hs, err := history.Open(path)
	if err != nil {
		slog.Warn("opening history database", "path", path, "err", err)
		return
	}
	defer hs.Close() //nolint:errcheck // best-effort cleanup
	id, err := hs.Save(p.name, p.target, res, at, elapsed)
	if err != nil {
		slog.Warn("recording history", "err", err)
		return
	}
	slog.Debug("recorded run", "id", id)
}

// connOptions builds the connection options shared by every check.
func connOptions(cfg *config.Config) ([]httpconn.Option, error) {
	var opts []httpconn.Option
	if cfg.SOCKS5 != "" {
		dial, err := probe.SOCKS5Dialer(cfg.SOCKS5)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpconn.WithDialer(dial))
	}
	if cfg.RootCAFile != "" {
		pool, err := loadRootCAs(cfg.RootCAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpconn.WithRootCAs(pool))
	}
	return opts, nil
}

func loadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading root CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("root CA file contains no PEM certificates")
	}
	return pool, nil
}
