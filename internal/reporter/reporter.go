// Package reporter defines the event-reporting contract used by the
// pipeline (and, for spill warnings, the writer) to surface progress,
// discovery, and completion information to a terminal, a log file, or both
// at once.
package reporter

import "time"

// Reporter receives events during a make-DCP job. Implementations must be
// safe for concurrent use: the pipeline's progress loop and the writer's
// spill warnings (raised on coordinator worker goroutines) report from
// separate goroutines.
type Reporter interface {
	Hardware(HardwareSummary)
	EncodingConfig(EncodingConfigSummary)
	DiscoveryFound(ServerFoundSummary)
	EncodingStarted(totalFrames int)
	EncodingProgress(ProgressSnapshot)
	WriterStats(WriterSummary)
	JobComplete(JobOutcome)
	Warning(message string)
	Error(ReporterError)
	Verbose(message string)
}

// HardwareSummary describes the local machine a job runs on.
type HardwareSummary struct {
	Hostname             string
	LocalEncodingThreads int
}

// EncodingConfigSummary describes the resolved configuration for a job
// before the coordinator starts dispatching work.
type EncodingConfigSummary struct {
	OutputDir       string
	Resolution      string // "2K" or "4K"
	J2KBandwidth    uint64
	ProtocolVersion uint32
	UseAnyServers   bool
	ExplicitServers []string
}

// ServerFoundSummary reports one newly-discovered remote encoding server.
type ServerFoundSummary struct {
	Host    string
	Port    uint16
	Threads int
}

// ProgressSnapshot is a point-in-time view of encode progress.
type ProgressSnapshot struct {
	FramesTotal     int
	FramesComplete  int
	FramesEncoded   int // FULL encodes, excludes fake-writes and repeats
	FPS             float32
	Speed           float32 // FPS relative to the configured project fps, 1.0 = real time
	ETA             time.Duration
}

// Percent returns progress in [0, 100], or 0 if the total is unknown.
func (p ProgressSnapshot) Percent() float32 {
	if p.FramesTotal <= 0 {
		return 0
	}
	pct := float32(p.FramesComplete) / float32(p.FramesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// WriterSummary reports the final breakdown of how each frame in the
// essence file was produced.
type WriterSummary struct {
	FullEncodes  int
	FakeWrites   int
	Repeats      int
	PictureBytes uint64
	AudioBytes   uint64
}

// JobOutcome is the terminal summary of a make-DCP job.
type JobOutcome struct {
	PictureAsset string
	AudioAsset   string
	FrameInfo    string
	TotalTime    time.Duration
	AverageSpeed float32
}

// ReporterError carries a user-facing failure summary.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// NullReporter discards all events.
type NullReporter struct{}

func (NullReporter) Hardware(HardwareSummary)             {}
func (NullReporter) EncodingConfig(EncodingConfigSummary) {}
func (NullReporter) DiscoveryFound(ServerFoundSummary)    {}
func (NullReporter) EncodingStarted(int)                  {}
func (NullReporter) EncodingProgress(ProgressSnapshot)    {}
func (NullReporter) WriterStats(WriterSummary)            {}
func (NullReporter) JobComplete(JobOutcome)                {}
func (NullReporter) Warning(string)                        {}
func (NullReporter) Error(ReporterError)                    {}
func (NullReporter) Verbose(string)                         {}
