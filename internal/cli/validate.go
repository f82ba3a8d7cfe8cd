package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a nagcheck config file",
	Long: `Load and validate a nagcheck YAML config file without running any check.

Checks for YAML syntax errors, non-positive timeouts, inverted warning and
critical thresholds, malformed headers and unknown output formats.
Exits 0 on success, 1 on validation failure.`,
	Example: `  nagcheck validate /etc/nagcheck/config.yaml
  nagcheck validate config.yaml && echo "Config OK"`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		cmd.PrintErrln(err)
		cmd.SilenceUsage = true
		return &exitError{code: 1}
	}
	cmd.Printf("config OK (http timeout %s, generic timeout %s, output %s)\n",
		cfg.HTTP.Timeout, cfg.Generic.RequestTimeout, cfg.Output)
	return nil
}
