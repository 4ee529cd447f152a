package probe

import (
	"sync/atomic"
	"time"
)

// Config holds configuration for a probe run.
type Config struct {
	BaseURL    string        // Base URL of the service
	LakeID     string        // Lake to probe; empty picks the first listed
	Sessions   int           // Number of timelines to open
	Drags      int           // Drags per timeline
	Workers    int           // Concurrent sessions
	Width      float64       // Canvas width of every timeline
	Height     float64       // Canvas height of every timeline
	Seed       uint64        // Seed of the gesture generator
	Timeout    time.Duration // HTTP request timeout
	SettleWait time.Duration // How long a window may take to resolve
	ReportFile string        // Output file for the run report
	LogFile    string        // Log file for probe output
	Verbose    bool          // Enable verbose logging
}

// Stats holds probe statistics. Counters are updated concurrently.
type Stats struct {
	SessionsOpened atomic.Int64
	SessionsFailed atomic.Int64
	GesturesSent   atomic.Int64
	Jumps          atomic.Int64
	FramesChecked  atomic.Int64
	WindowsSettled atomic.Int64
	Violations     atomic.Int64
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// Report is the serialisable outcome of a run.
type Report struct {
	BaseURL        string        `json:"base_url"`
	LakeID         string        `json:"lake_id"`
	Seed           uint64        `json:"seed"`
	SessionsOpened int64         `json:"sessions_opened"`
	SessionsFailed int64         `json:"sessions_failed"`
	GesturesSent   int64         `json:"gestures_sent"`
	Jumps          int64         `json:"jumps"`
	FramesChecked  int64         `json:"frames_checked"`
	WindowsSettled int64         `json:"windows_settled"`
	Violations     int64         `json:"violations"`
	Failures       []string      `json:"failures,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}
