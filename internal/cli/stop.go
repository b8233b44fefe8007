package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/jimbolo/convtrack/internal/config"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the convtrack daemon",
	Long:  `Stops the running convtrack daemon by sending SIGTERM to the process named in the configured PID file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := getConfigPath()
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration from '%s' to find PID file: %w", configPath, err)
		}
		pidFilePath := cfg.Application.PIDFilePath
		if pidFilePath == "" {
			return errors.New("PID file path not configured in application settings; cannot stop daemon")
		}

		pid, err := readPID(pidFilePath)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("PID file not found at '%s'; is the daemon running?", pidFilePath)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("finding process with PID %d: %w", pid, err)
		}
		fmt.Fprintf(out, "Sending SIGTERM to process with PID %d...\n", pid)
		if err := process.Signal(syscall.SIGTERM); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				fmt.Fprintf(out, "Process with PID %d already exited; removing stale PID file.\n", pid)
				_ = os.Remove(pidFilePath)
				return nil
			}
			return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
		}
		fmt.Fprintf(out, "Signal sent successfully to PID %d. Check logs for shutdown status.\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
