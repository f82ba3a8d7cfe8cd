// Package monitor runs a check as a monitoring plugin: it turns whatever the
// check returns into a Result, prints it and maps it to the process exit
// code.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ppiankov/nagcheck/internal/status"
)

// CheckFunc performs one check. A returned error means the check itself
// could not run, not that the checked service is unhealthy.
type CheckFunc func(ctx context.Context) (status.Result, error)

const (
	programErrorMessage = "check did not run correctly due to program error"
	argumentsMessage    = "unable to process command line arguments due to program error"
)

// Run executes fn and always yields a Result. Errors and panics become
// Unknown with a description of what went wrong.
func Run(ctx context.Context, prefix string, fn CheckFunc) (res status.Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("check panicked", "prefix", prefix, "panic", p)
			res = ProgramError(prefix, fmt.Errorf("panic: %v", p))
		}
	}()

	res, err := fn(ctx)
	if err != nil {
		slog.Debug("check failed to run", "prefix", prefix, "err", err)
		return ProgramError(prefix, err)
	}
	if res.Prefix == "" {
		res.Prefix = prefix
	}
	return res
}

// ProgramError reports a check that could not run.
func ProgramError(prefix string, err error) status.Result {
	return status.NewResult(status.Unknown, prefix,
		[]string{programErrorMessage, err.Error()}, nil, nil)
}

// ArgumentError reports options that could not be turned into a check.
func ArgumentError(prefix string, err error) status.Result {
	return status.NewResult(status.Unknown, prefix,
		[]string{argumentsMessage, err.Error()}, nil, nil)
}

// ExitCode returns the plugin exit code for res.
//
//	0 = ok
//	1 = warning
//	2 = critical
//	3 = unknown
func ExitCode(res status.Result) int {
	return res.Status.ExitCode()
}

// WriteText prints res in plugin format: "PREFIX STATUS: message", an
// optional " | perfdata" suffix, then one line per extra information entry.
func WriteText(w io.Writer, res status.Result) error {
	line := fmt.Sprintf("%s %s: %s", res.Prefix, res.Status, res.Message)
	if len(res.PerformanceData) > 0 {
		line += " | " + strings.Join(res.PerformanceData, " ")
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	for _, extra := range res.ExtraInformation {
		if _, err := fmt.Fprintln(w, extra); err != nil {
			return err
		}
	}
	return nil
}
