package monitor

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/nagcheck/internal/status"
)

// Output is the JSON envelope for `--output json`. It carries the result and
// the exit code the process is about to return.
type Output struct {
	Result   status.Result `json:"result"`
	ExitCode int           `json:"exitCode"`
}

// WriteJSON serializes an Output envelope for res to w.
func WriteJSON(w io.Writer, res status.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Output{
		Result:   res,
		ExitCode: ExitCode(res),
	})
}

// Write prints res in the requested format, "json" or plugin text.
func Write(w io.Writer, format string, res status.Result) error {
	if format == "json" {
		return WriteJSON(w, res)
	}
	return WriteText(w, res)
}
