package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/history"
	"github.com/ppiankov/nagcheck/internal/monitor"
	"github.com/ppiankov/nagcheck/internal/status"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded check results",
	Long: `List check results recorded with --history-db, newest first.

With --latest, reprint the most recent result of one check target exactly
as the plugin printed it.`,
	Example: `  nagcheck history --history-db /var/lib/nagcheck/history.db
  nagcheck history --history-db history.db --check http --target example.com --limit 5
  nagcheck history --history-db history.db --check http --target example.com --latest`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("check", "", "Only show this check (http, generic)")
	historyCmd.Flags().String("target", "", "Only show this target")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().Bool("latest", false, "Reprint the latest result of --check and --target")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("--history-db is required")
	}
	check, _ := cmd.Flags().GetString("check")  //nolint:errcheck // flag registered above
	target, _ := cmd.Flags().GetString("target") //nolint:errcheck // flag registered above
	limit, _ := cmd.Flags().GetInt("limit")      //nolint:errcheck // flag registered above
	latest, _ := cmd.Flags().GetBool("latest")   //nolint:errcheck // flag registered above

	hs, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hs.Close() //nolint:errcheck // read-only use

	if latest {
		if check == "" || target == "" {
			return errors.New("--latest requires --check and --target")
		}
		run, err := hs.Latest(check, target)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no recorded runs for %s %s", check, target)
		}
		return monitor.Write(cmd.OutOrStdout(), cfg.Output, run.Result())
	}

	runs, err := hs.List(check, target, limit)
	if err != nil {
		return err
	}
	if cfg.Output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs.") //nolint:errcheck // best-effort output
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHECK\tTARGET\tSTATUS\tDURATION\tMESSAGE") //nolint:errcheck // best-effort output
	for i := range runs {
		r := &runs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort output
			r.At.Local().Format(time.DateTime), r.Check, r.Target, r.Status,
			status.FormatDurationShort(r.Duration), r.Message)
	}
	return tw.Flush()
}
