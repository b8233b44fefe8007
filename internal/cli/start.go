package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the convtrack daemon",
	Long: `Starts the convtrack daemon in the foreground: the purchase detector, the
beacon and control HTTP server, and config hot reload. SIGINT or SIGTERM
shut it down gracefully, persisting queued events.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, getConfigPath(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
