package cli

import (
	"context"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nagcheck/internal/socks5"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a SOCKS5 relay for checks made with --socks5",
	Long: `Run a CONNECT-only SOCKS5 relay without authentication.

Start it on a host inside a private network, then point checks at it with
--socks5 so targets are resolved and dialled from that network.`,
	Example: `  nagcheck relay --listen :1080 --allow-port 80,443
  nagcheck http --socks5 jump.internal:1080 --address app.internal --secure`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().String("listen", ":1080", "Address to listen on")
	relayCmd.Flags().Duration("dial-timeout", 10*time.Second, "Timeout for dialing a destination")
	relayCmd.Flags().IntSlice("allow-port", nil, "Only relay to these destination ports (default: any)")
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	listen, _ := cmd.Flags().GetString("listen")              //nolint:errcheck // flag registered above
	dialTimeout, _ := cmd.Flags().GetDuration("dial-timeout") //nolint:errcheck // flag registered above
	ports, _ := cmd.Flags().GetIntSlice("allow-port")         //nolint:errcheck // flag registered above

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &socks5.Server{Addr: listen, DialTimeout: dialTimeout, Allow: allowPorts(ports)}
	return s.ListenAndServe(ctx)
}

// allowPorts returns a destination filter for the given ports, or nil when
// every port is allowed.
func allowPorts(ports []int) func(string, int) bool {
	if len(ports) == 0 {
		return nil
	}
	return func(_ string, port int) bool {
		return slices.Contains(ports, port)
	}
}
