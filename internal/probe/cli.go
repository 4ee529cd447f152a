package probe

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/lakeline/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging sends probe logs to stdout and to logFile. An empty
// logFile gets a timestamped name. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		logFile = "probe_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the probe.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Lakeline Timeline Probe
=======================

Drives timelines of a running lakeline service with scripted drags and
jumps, and checks every returned frame for render invariants.

Usage:
  go run ./cmd/timeline-probe [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -lake string
        Lake to probe (default: first lake of the catalogue)
  -sessions int
        Number of timelines to open (default 20)
  -drags int
        Drags per timeline (default 10)
  -workers int
        Concurrent timelines (default CPU cores)
  -width float
        Canvas width (default 800)
  -height float
        Canvas height (default 200)
  -seed uint
        Seed of the gesture generator (default: current time)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long a window may take to resolve (default 30s)
  -report string
        Output file for the run report (default: probe_report_TIMESTAMP.json)
  -log string
        Log file for probe output (default: probe_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Probe a local service
  go run ./cmd/timeline-probe

  # Replay a run against another lake
  go run ./cmd/timeline-probe -lake PT05ALQ -seed 42 -sessions 100 -workers 16
`)
}
