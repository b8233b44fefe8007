package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jimbolo/convtrack/internal/server"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show detector statistics",
	Long:  `Displays queue depth, processed events, history size, recorded conversions and uptime of the running daemon.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}
		body, err := client.get(server.StatsPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			fmt.Fprintf(out, "%s", body)
			return nil
		}

		var st models.Stats
		if err := json.Unmarshal(body, &st); err != nil {
			return fmt.Errorf("decoding stats: %w", err)
		}
		fmt.Fprintf(out, "Queued events:    %d\n", st.QueuedEvents)
		fmt.Fprintf(out, "Processed events: %d\n", st.ProcessedEvents)
		fmt.Fprintf(out, "History size:     %d\n", st.HistorySize)
		fmt.Fprintf(out, "Conversions:      %d\n", st.Conversions)
		fmt.Fprintf(out, "Uptime:           %s\n", st.Uptime.Truncate(time.Second))
		if e := st.LastEvent; e != nil {
			fmt.Fprintf(out, "Last event:       %s (%s) score=%.2f at %s\n",
				e.Source, e.Type, e.ConfidenceScore, e.Timestamp.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the raw JSON stats")
	rootCmd.AddCommand(statsCmd)
}
