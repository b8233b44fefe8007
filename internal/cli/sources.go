package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List signal sources and detection rules",
	Long:  `Displays the signal sources, the detection rules they apply and the configured conversion sink.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := getConfigPath()
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration from '%s': %w", configPath, err)
		}
		printSources(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func printSources(out io.Writer, cfg *models.Config) {
	det, proc := cfg.Detection, cfg.Processing

	fmt.Fprintln(out, "--- Signal Sources ---")
	sources := []struct {
		name   models.Source
		detail string
	}{
		{models.SourceNetwork, "purchase-endpoint responses with a 2xx status"},
		{models.SourceHistory, fmt.Sprintf("purchase-endpoint navigations, document scanned after %s", proc.HistorySettleDelay.Duration)},
		{models.SourceStorage, fmt.Sprintf("storage keys polled every %s, cookies every %s", proc.StoragePollInterval.Duration, proc.CookiePollInterval.Duration)},
		{models.SourceCustomEvent, "events: " + strings.Join(det.CustomEvents, ", ")},
		{models.SourceForm, "submissions to purchase endpoints or with purchase fields"},
		{models.SourceDOM, "added elements whose text mentions a purchase keyword"},
		{models.SourcePerformance, "navigation entries on purchase endpoints"},
		{models.SourceManual, "convtrack trigger or POST /convtrack/trigger"},
	}
	for _, s := range sources {
		fmt.Fprintf(out, "%-17s base=%.1f  %s\n", s.name, s.name.BaseConfidence(), s.detail)
	}

	fmt.Fprintln(out, "\n--- Detection Rules ---")
	fmt.Fprintf(out, "Purchase endpoints: %s\n", strings.Join(det.PurchaseEndpoints, ", "))
	fmt.Fprintf(out, "Purchase keywords:  %s\n", strings.Join(det.PurchaseKeywords, ", "))
	fmt.Fprintf(out, "Storage keys:       %s\n", strings.Join(det.StorageKeys, ", "))
	fmt.Fprintf(out, "Threshold:          %.2f\n", *det.ConfidenceThreshold)
	fmt.Fprintf(out, "Dedup window:       %s\n", det.DedupWindow.Duration)
	fmt.Fprintf(out, "Retention window:   %s\n", det.RetentionWindow.Duration)

	fmt.Fprintln(out, "\n--- Conversion Sink ---")
	sink := cfg.Sink
	sendTo := "N/A (conversions are not reported)"
	if sink.ConversionID != "" && sink.ConversionLabel != "" {
		sendTo = sink.ConversionID + "/" + sink.ConversionLabel
	}
	fmt.Fprintf(out, "Send to:   %s\n", sendTo)
	switch {
	case sink.Endpoint != "":
		fmt.Fprintf(out, "Sender:    http (%s)\n", sink.Endpoint)
	case sink.Script != "":
		fmt.Fprintln(out, "Sender:    script")
	default:
		fmt.Fprintln(out, "Sender:    log")
	}
	fmt.Fprintf(out, "Retry:     %d retries, %s linear backoff\n", *sink.Retry.MaxRetries, sink.Retry.Delay.Duration)
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
