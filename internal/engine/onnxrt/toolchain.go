// Package onnxrt drives the Python ultralytics/onnxruntime toolchain as
// subprocesses. Each collaborator contract from package engine is served by
// a small script passed to the configured interpreter.
package onnxrt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Toolchain locates the interpreter used for every adapter in this package
type Toolchain struct {
	Python string
	Logger logrus.FieldLogger
}

// NewToolchain creates a toolchain using the given interpreter (python3 when empty)
func NewToolchain(python string, logger logrus.FieldLogger) *Toolchain {
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Toolchain{
		Python: python,
		Logger: logger,
	}
}

// runScript executes an inline script and returns its stdout
func (tc *Toolchain) runScript(ctx context.Context, script string, args ...string) (string, error) {
	cmdArgs := append([]string{"-c", script}, args...)
	cmd := exec.CommandContext(ctx, tc.Python, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	tc.Logger.WithField("args", args).Debug("running toolchain script")
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s: %w: %s", tc.Python, err, lastLines(stderr.String(), 5))
	}
	return stdout.String(), nil
}

// lastLines keeps the tail of a subprocess stream for error messages
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// lastLine returns the final non-empty line of a script's stdout
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
