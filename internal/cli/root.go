package cli

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile will hold the path to the config file, bound to the persistent flag
	cfgFile string
	// daemonAddr overrides the daemon address taken from the config
	daemonAddr string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "convtrack",
	Short: "convtrack detects completed purchases and reports them as conversions",
	Long: `convtrack observes browser signals (network responses, navigation,
storage, custom events, forms, DOM mutations, performance entries),
scores each candidate purchase and reports accepted ones to a conversion sink.

Run 'convtrack help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "", "Daemon address (defaults to application.listen_address)")
}

// Helper function to get the config file path (used by commands)
func getConfigPath() string {
	return cfgFile
}
