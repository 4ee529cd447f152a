package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/lakeline/internal/probe"
)

const (
	defaultSessions    = 20
	defaultDrags       = 10
	defaultWidth       = 800
	defaultHeight      = 200
	defaultTimeout     = 30 * time.Second
	defaultSettle      = 30 * time.Second
	defaultProbeWindow = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		lakeID   = flag.String("lake", "", "Lake to probe (default: first lake of the catalogue)")
		sessions = flag.Int("sessions", defaultSessions, "Number of timelines to open")
		drags    = flag.Int("drags", defaultDrags, "Drags per timeline")
		workers  = flag.Int("workers", runtime.NumCPU(), "Concurrent timelines")
		width    = flag.Float64("width", defaultWidth, "Canvas width")
		height   = flag.Float64("height", defaultHeight, "Canvas height")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed of the gesture generator")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", defaultSettle, "How long a window may take to resolve")
		report   = flag.String("report", "", "Output file for the run report (default: probe_report_TIMESTAMP.json)")
		logFile  = flag.String("log", "", "Log file for probe output (default: probe_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		probe.ShowHelp()
		return
	}

	closeLog, err := probe.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	if *report == "" {
		*report = "probe_report_" + time.Now().Format("20060102_150405") + ".json"
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultProbeWindow)
	defer cancel()

	cfg := &probe.Config{
		BaseURL:    *baseURL,
		LakeID:     *lakeID,
		Sessions:   *sessions,
		Drags:      *drags,
		Workers:    *workers,
		Width:      *width,
		Height:     *height,
		Seed:       *seed,
		Timeout:    *timeout,
		SettleWait: *settle,
		ReportFile: *report,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}
	if _, err := probe.Run(ctx, cfg); err != nil {
		_, _ = os.Stderr.WriteString("Probe failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
