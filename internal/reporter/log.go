package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/five82/dcpflow/internal/util"
)

// LogReporter writes job events to a log file.
type LogReporter struct {
	w                  io.Writer
	mu                 sync.Mutex
	lastProgressBucket int // progress in 5% buckets, to avoid flooding the log
}

// NewLogReporter creates a new log reporter that writes to the given writer.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{
		w:                  w,
		lastProgressBucket: -1,
	}
}

func (r *LogReporter) log(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, msg)
}

func (r *LogReporter) Hardware(summary HardwareSummary) {
	r.log("INFO", "=== HARDWARE ===")
	r.log("INFO", "Hostname: %s", summary.Hostname)
	r.log("INFO", "Local threads: %d", summary.LocalEncodingThreads)
}

func (r *LogReporter) EncodingConfig(summary EncodingConfigSummary) {
	r.log("INFO", "=== ENCODING CONFIG ===")
	r.log("INFO", "Output: %s", summary.OutputDir)
	r.log("INFO", "Resolution: %s", summary.Resolution)
	r.log("INFO", "Bandwidth: %d bps", summary.J2KBandwidth)
	r.log("INFO", "Protocol version: %d", summary.ProtocolVersion)
	r.log("INFO", "Use any servers: %v", summary.UseAnyServers)
	if len(summary.ExplicitServers) > 0 {
		r.log("INFO", "Explicit servers: %v", summary.ExplicitServers)
	}
}

func (r *LogReporter) DiscoveryFound(summary ServerFoundSummary) {
	r.log("INFO", "Server found: %s:%d (%d threads)", summary.Host, summary.Port, summary.Threads)
}

func (r *LogReporter) EncodingStarted(totalFrames int) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.mu.Unlock()
	r.log("INFO", "=== ENCODING STARTED === (total frames: %d)", totalFrames)
}

func (r *LogReporter) EncodingProgress(p ProgressSnapshot) {
	pct := p.Percent()
	bucket := int(pct / 5)
	r.mu.Lock()
	if bucket > r.lastProgressBucket && bucket <= 20 {
		r.lastProgressBucket = bucket
		r.mu.Unlock()
		r.log("INFO", "Progress: %.0f%% (%d/%d frames, speed %.1fx, fps %.1f, eta %s)",
			pct, p.FramesComplete, p.FramesTotal, p.Speed, p.FPS, util.FormatDuration(p.ETA))
	} else {
		r.mu.Unlock()
	}
}

func (r *LogReporter) WriterStats(summary WriterSummary) {
	r.log("INFO", "=== WRITER ===")
	r.log("INFO", "Full encodes: %d", summary.FullEncodes)
	r.log("INFO", "Fake-writes: %d", summary.FakeWrites)
	r.log("INFO", "Repeats: %d", summary.Repeats)
	r.log("INFO", "Picture bytes: %s", util.FormatBytes(summary.PictureBytes))
	r.log("INFO", "Audio bytes: %s", util.FormatBytes(summary.AudioBytes))
}

func (r *LogReporter) JobComplete(outcome JobOutcome) {
	r.log("INFO", "=== RESULTS ===")
	r.log("INFO", "Picture asset: %s", outcome.PictureAsset)
	r.log("INFO", "Audio asset: %s", outcome.AudioAsset)
	r.log("INFO", "Frame index: %s", outcome.FrameInfo)
	r.log("INFO", "Time: %s (avg speed %.1fx)", util.FormatDuration(outcome.TotalTime), outcome.AverageSpeed)
}

func (r *LogReporter) Warning(message string) {
	r.log("WARN", "%s", message)
}

func (r *LogReporter) Error(err ReporterError) {
	r.log("ERROR", "%s: %s", err.Title, err.Message)
	if err.Context != "" {
		r.log("ERROR", "  Context: %s", err.Context)
	}
	if err.Suggestion != "" {
		r.log("ERROR", "  Suggestion: %s", err.Suggestion)
	}
}

func (r *LogReporter) Verbose(message string) {
	r.log("DEBUG", "%s", message)
}
