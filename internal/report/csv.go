package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/ppiankov/nagcheck/internal/history"
)

var csvHeader = []string{
	"at", "check", "target", "status", "exitCode", "durationMs", "message",
}

// WriteCSV writes recorded runs as CSV rows to w.
func WriteCSV(w io.Writer, runs []history.Run) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := range runs {
		r := &runs[i]
		row := []string{
			r.At.UTC().Format(time.RFC3339),
			r.Check,
			r.Target,
			r.Status,
			strconv.Itoa(r.ExitCode),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			r.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
