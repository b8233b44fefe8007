package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jimbolo/convtrack/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// optionalFloat is a float flag that distinguishes "not given" from zero.
type optionalFloat struct{ v *float64 }

var _ pflag.Value = (*optionalFloat)(nil)

func (f *optionalFloat) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatFloat(*f.v, 'f', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	f.v = &v
	return nil
}

func (f *optionalFloat) Type() string { return "float" }

var (
	triggerOrderID  string
	triggerValue    optionalFloat
	triggerCurrency string
	// Use StringArray to capture multiple --item flags
	triggerItems []string
)

// triggerCmd represents the trigger command
var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manually report a purchase",
	Long: `Sends a purchase to the running convtrack daemon. Manual purchases are
fully trusted: they skip extraction and are reported at confidence 1.0
unless they duplicate a recent order.
Example: convtrack trigger --order-id ORD-1 --value 49.99 --currency USD`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := server.TriggerRequest{OrderID: triggerOrderID, Value: triggerValue.v, Currency: triggerCurrency}
		if req.OrderID == "" && req.Value == nil {
			return errors.New("at least one of --order-id or --value is required")
		}
		for _, item := range triggerItems {
			req.Items = append(req.Items, item)
		}

		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		client, err := newDaemonClient()
		if err != nil {
			return err
		}
		if _, err := client.post(server.TriggerPath, body); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Trigger accepted by daemon. Purchase queued.")
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerOrderID, "order-id", "", "Order id of the purchase")
	triggerCmd.Flags().Var(&triggerValue, "value", "Purchase value, e.g. 49.99")
	triggerCmd.Flags().StringVar(&triggerCurrency, "currency", "", "ISO 4217 currency code (defaults to the sink's default currency)")
	triggerCmd.Flags().StringArrayVarP(&triggerItems, "item", "i", []string{}, "Purchased item (can be repeated)")
	rootCmd.AddCommand(triggerCmd)
}
