// Package ui provides terminal styling and logger setup for strata.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger initializes the charm logger with default settings.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SetFormat switches the log format. Long-running servers use "json" or
// "logfmt" with timestamps; "text" is the interactive default.
func SetFormat(format string) error {
	switch format {
	case "", "text":
		log.SetFormatter(log.TextFormatter)
		log.SetReportTimestamp(false)
	case "json":
		log.SetFormatter(log.JSONFormatter)
		log.SetReportTimestamp(true)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
		log.SetReportTimestamp(true)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	return nil
}
