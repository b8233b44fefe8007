package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jimbolo/convtrack/internal/logger"
)

// PlaceholderRegex matches the {{placeholder}} syntax.
var PlaceholderRegex = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Executor runs the direct-send script configured for the conversion sink.
type Executor struct {
	// Shell interprets inline (multi-line) scripts. Defaults to /bin/sh.
	Shell string
}

// NewExecutor creates a new script executor.
func NewExecutor() *Executor {
	return &Executor{Shell: "/bin/sh"}
}

// Execute substitutes params into script and runs it, capturing output.
//
// A single-line script is a command line: it is split into fields first and
// placeholders are substituted per field, so values never reach a shell.
// A multi-line script is written to a temporary file and run by the shell;
// values are single-quoted before substitution. Every parameter is also
// exported as CONVTRACK_<NAME> in the child's environment.
func (e *Executor) Execute(ctx context.Context, script string, params map[string]string) (stdout, stderr string, err error) {
	l := logger.L().With("component", "action")
	if strings.TrimSpace(script) == "" {
		return "", "", errors.New("script is empty")
	}

	var cmd *exec.Cmd
	if strings.ContainsAny(script, "\n\r") {
		content, err := substitutePlaceholders(script, params, shellQuote)
		if err != nil {
			return "", "", fmt.Errorf("parameter substitution failed: %w", err)
		}
		path, cleanup, err := e.writeTempScript(content)
		if err != nil {
			return "", "", err
		}
		defer cleanup()
		l.Debug("Executing inline script via temporary file", "temp_file", path)
		cmd = exec.CommandContext(ctx, path)
	} else {
		fields := strings.Fields(script)
		for i, f := range fields {
			fields[i], err = substitutePlaceholders(f, params, nil)
			if err != nil {
				return "", "", fmt.Errorf("parameter substitution failed: %w", err)
			}
		}
		l.Debug("Executing command", "command", fields[0], "args", fields[1:])
		cmd = exec.CommandContext(ctx, fields[0], fields[1:]...)
	}
	cmd.Env = append(os.Environ(), envFor(params)...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	startTime := time.Now()
	runErr := cmd.Run()
	duration := time.Since(startTime)

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		l.Error("Script execution failed", "error", runErr, "exit_code", exitCode, "duration", duration.String(), "stderr", stderr)
		return stdout, stderr, fmt.Errorf("script failed with exit code %d: %w", exitCode, runErr)
	}

	l.Debug("Script executed successfully", "duration", duration.String(), "stdout", stdout, "stderr", stderr)
	return stdout, stderr, nil
}

func (e *Executor) writeTempScript(content string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "convtrack_send_*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp script file: %w", err)
	}
	cleanup := func() { os.Remove(tmpFile.Name()) }

	if !strings.HasPrefix(content, "#!") {
		shell := e.Shell
		if shell == "" {
			shell = "/bin/sh"
		}
		content = "#!" + shell + "\n" + content
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp script: %w", err)
	}
	tmpFile.Close()

	if err := os.Chmod(tmpFile.Name(), 0700); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to chmod temp script: %w", err)
	}
	return tmpFile.Name(), cleanup, nil
}

// substitutePlaceholders replaces {{key}} patterns in a string with values
// from params, optionally passing each value through escape first.
func substitutePlaceholders(template string, params map[string]string, escape func(string) string) (string, error) {
	var firstError error
	result := PlaceholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(PlaceholderRegex.FindStringSubmatch(match)[1])
		value, ok := params[key]
		if !ok {
			if firstError == nil {
				firstError = fmt.Errorf("placeholder '{{%s}}' not found in provided parameters", key)
			}
			return match
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
	return result, firstError
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func envFor(params map[string]string) []string {
	env := make([]string, 0, len(params))
	for k, v := range params {
		env = append(env, "CONVTRACK_"+strings.ToUpper(k)+"="+v)
	}
	return env
}
