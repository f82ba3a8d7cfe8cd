package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/history"
	"github.com/ppiankov/nagcheck/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render recorded check runs as an HTML or CSV report",
	Long: `Read runs recorded with --history-db and render them as a self-contained
HTML availability report or as CSV.`,
	Example: `  nagcheck report --history-db history.db --file availability.html
  nagcheck report --history-db history.db --format csv --check http > runs.csv`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("format", "html", "Report format: html, csv")
	reportCmd.Flags().String("file", "", "Write the report to this file (default: stdout)")
	reportCmd.Flags().String("title", "nagcheck availability report", "HTML report title")
	reportCmd.Flags().String("check", "", "Only include this check")
	reportCmd.Flags().String("target", "", "Only include this target")
	reportCmd.Flags().Int("limit", 1000, "Maximum number of runs to include")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("--history-db is required")
	}
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag registered above
	file, _ := cmd.Flags().GetString("file")     //nolint:errcheck // flag registered above
	title, _ := cmd.Flags().GetString("title")   //nolint:errcheck // flag registered above
	check, _ := cmd.Flags().GetString("check")   //nolint:errcheck // flag registered above
	target, _ := cmd.Flags().GetString("target") //nolint:errcheck // flag registered above
	limit, _ := cmd.Flags().GetInt("limit")      //nolint:errcheck // flag registered above

	if format != "html" && format != "csv" {
		return fmt.Errorf("invalid --format %q: must be html or csv", format)
	}

	hs, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hs.Close() //nolint:errcheck // read-only use

	runs, err := hs.List(check, target, limit)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if file != "" {
		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close() //nolint:errcheck // closed explicitly below on success
		w = f
	}

	if format == "csv" {
		err = report.WriteCSV(w, runs)
	} else {
		var html []byte
		html, err = report.Generate(runs, title, time.Now())
		if err == nil {
			_, err = w.Write(html)
		}
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if f, ok := w.(*os.File); ok && file != "" {
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing report file: %w", err)
		}
		slog.Info("report written", "path", file, "runs", len(runs))
	}
	return nil
}
