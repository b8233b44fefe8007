package cli

import (
	"fmt"

	"github.com/jimbolo/convtrack/internal/server"
	"github.com/spf13/cobra"
)

// reloadCmd represents the reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload detection rules in the running daemon",
	Long: `Asks the running convtrack daemon to re-read its configuration file and
apply the detection rules (purchase endpoints, keywords, custom events)
without restarting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}
		body, err := client.post(server.ReloadPath, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon response: %s\n", body)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
