package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// readPID reads and parses a PID file.
func readPID(path string) (int, error) {
	pidBytes, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID from file '%s': %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID %d found in file '%s'", pid, path)
	}
	return pid, nil
}

// processAlive reports whether a process with pid exists.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// acquirePIDFile writes the current PID to path, refusing when the PID file
// names a live process. A stale file is replaced.
func acquirePIDFile(path string) error {
	if pid, err := readPID(path); err == nil && processAlive(pid) {
		return fmt.Errorf("process with PID %d found (from %s); is convtrack already running?", pid, path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}
