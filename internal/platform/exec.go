package platform

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result holds the complete outcome of one external tool invocation.
// Stderr is retained even on failure because the platform tools report
// everything interesting (not-found, bundle format, container hints) as
// free text there; ClassifyDiagnostic consumes it.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Run executes an external tool with a timeout, capturing both output
// streams. A non-zero exit returns the error from exec together with a
// populated Result; callers classify Result.Stderr rather than parsing
// the error string.
//
// Example:
//
//	res, err := platform.Run(ctx, platform.DownloadTimeout, dir, "stackctl", "functions", "download", name)
func Run(ctx context.Context, timeout time.Duration, workDir, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(err),
	}
	return res, err
}

// exitCode extracts the process exit code from a Run error.
// Returns 0 for success, -1 for errors that never produced an exit
// (binary missing, context cancelled before start).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ParseLines splits tool output into trimmed, non-empty lines.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}
	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}

// TrimOutput trims whitespace and trailing newlines from tool output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// LookPath reports whether the named binary is available.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
