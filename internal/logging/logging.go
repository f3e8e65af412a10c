// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init applies level and format to the standard logger
func Init(level, format string, out io.Writer) error {
	return Configure(log.StandardLogger(), level, format, out)
}

// Configure applies level ("debug", "info", "warn", "error") and format
// ("text" or "json") to logger. A nil out leaves the writer unchanged.
func Configure(logger *log.Logger, level, format string, out io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q: want text or json", format)
	}

	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}
