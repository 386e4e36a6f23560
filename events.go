// Package dcpflow provides a Go library for distributed JPEG2000 encoding
// of Digital Cinema Packages.
package dcpflow

import "time"

// Event types for external integrations.
const (
	EventTypeHardware        = "hardware"
	EventTypeEncodingConfig  = "encoding_config"
	EventTypeServerFound     = "server_found"
	EventTypeEncodingStarted = "encoding_started"
	EventTypeProgress        = "progress"
	EventTypeWriterStats     = "writer_stats"
	EventTypeJobComplete     = "job_complete"
	EventTypeWarning         = "warning"
	EventTypeError           = "error"
)

// Event is the interface for all dcpflow events.
type Event interface {
	Type() string
	Timestamp() int64
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string `json:"type"`
	Time      int64  `json:"timestamp"`
}

func (e BaseEvent) Type() string     { return e.EventType }
func (e BaseEvent) Timestamp() int64 { return e.Time }

// HardwareEvent reports the local machine's encoding capacity at job start.
type HardwareEvent struct {
	BaseEvent
	Hostname             string `json:"hostname"`
	LocalEncodingThreads int    `json:"local_encoding_threads"`
}

// EncodingConfigEvent reports the resolved job configuration before any
// frames are submitted.
type EncodingConfigEvent struct {
	BaseEvent
	OutputDir       string   `json:"output_dir"`
	Resolution      string   `json:"resolution"`
	J2KBandwidth    uint64   `json:"j2k_bandwidth"`
	ProtocolVersion uint32   `json:"protocol_version"`
	UseAnyServers   bool     `json:"use_any_servers"`
	ExplicitServers []string `json:"explicit_servers,omitempty"`
}

// ServerFoundEvent reports a newly discovered remote encoding server.
type ServerFoundEvent struct {
	BaseEvent
	Host    string `json:"host"`
	Port    uint16 `json:"port"`
	Threads int    `json:"threads"`
}

// EncodingStartedEvent marks the moment the coordinator begins accepting
// frames.
type EncodingStartedEvent struct {
	BaseEvent
	TotalFrames int `json:"total_frames"`
}

// ProgressEvent reports point-in-time encode progress.
type ProgressEvent struct {
	BaseEvent
	Percent        float32 `json:"percent"`
	FramesComplete int     `json:"frames_complete"`
	FramesTotal    int     `json:"frames_total"`
	Speed          float32 `json:"speed"`
	FPS            float32 `json:"fps"`
	ETASeconds     int64   `json:"eta_seconds"`
}

// WriterStatsEvent reports the final breakdown of how frames were
// produced.
type WriterStatsEvent struct {
	BaseEvent
	FullEncodes  int    `json:"full_encodes"`
	FakeWrites   int    `json:"fake_writes"`
	Repeats      int    `json:"repeats"`
	PictureBytes uint64 `json:"picture_bytes"`
	AudioBytes   uint64 `json:"audio_bytes"`
}

// JobCompleteEvent is the terminal event for a successful job.
type JobCompleteEvent struct {
	BaseEvent
	PictureAsset string  `json:"picture_asset"`
	AudioAsset   string  `json:"audio_asset"`
	FrameInfo    string  `json:"frame_info"`
	TotalSeconds int64   `json:"total_seconds"`
	AverageSpeed float32 `json:"average_speed"`
}

// WarningEvent represents a warning message.
type WarningEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// ErrorEvent represents an error.
type ErrorEvent struct {
	BaseEvent
	Title      string `json:"title"`
	Message    string `json:"message"`
	Context    string `json:"context"`
	Suggestion string `json:"suggestion"`
}

// EventHandler is called with events during a make-DCP job.
type EventHandler func(Event) error

// NewTimestamp returns the current Unix timestamp.
func NewTimestamp() int64 {
	return time.Now().Unix()
}

// eventReporter adapts a flat EventHandler callback to the richer Reporter
// interface the pipeline drives internally.
type eventReporter struct {
	handler EventHandler
}

func newEventReporter(handler EventHandler) *eventReporter {
	return &eventReporter{handler: handler}
}

func (r *eventReporter) Hardware(s HardwareSummary) {
	_ = r.handler(HardwareEvent{
		BaseEvent:            BaseEvent{EventType: EventTypeHardware, Time: NewTimestamp()},
		Hostname:             s.Hostname,
		LocalEncodingThreads: s.LocalEncodingThreads,
	})
}

func (r *eventReporter) EncodingConfig(s EncodingConfigSummary) {
	_ = r.handler(EncodingConfigEvent{
		BaseEvent:       BaseEvent{EventType: EventTypeEncodingConfig, Time: NewTimestamp()},
		OutputDir:       s.OutputDir,
		Resolution:      s.Resolution,
		J2KBandwidth:    s.J2KBandwidth,
		ProtocolVersion: s.ProtocolVersion,
		UseAnyServers:   s.UseAnyServers,
		ExplicitServers: s.ExplicitServers,
	})
}

func (r *eventReporter) DiscoveryFound(s ServerFoundSummary) {
	_ = r.handler(ServerFoundEvent{
		BaseEvent: BaseEvent{EventType: EventTypeServerFound, Time: NewTimestamp()},
		Host:      s.Host,
		Port:      s.Port,
		Threads:   s.Threads,
	})
}

func (r *eventReporter) EncodingStarted(totalFrames int) {
	_ = r.handler(EncodingStartedEvent{
		BaseEvent:   BaseEvent{EventType: EventTypeEncodingStarted, Time: NewTimestamp()},
		TotalFrames: totalFrames,
	})
}

func (r *eventReporter) EncodingProgress(p ProgressSnapshot) {
	_ = r.handler(ProgressEvent{
		BaseEvent:      BaseEvent{EventType: EventTypeProgress, Time: NewTimestamp()},
		Percent:        p.Percent(),
		FramesComplete: p.FramesComplete,
		FramesTotal:    p.FramesTotal,
		Speed:          p.Speed,
		FPS:            p.FPS,
		ETASeconds:     int64(p.ETA.Seconds()),
	})
}

func (r *eventReporter) WriterStats(s WriterSummary) {
	_ = r.handler(WriterStatsEvent{
		BaseEvent:    BaseEvent{EventType: EventTypeWriterStats, Time: NewTimestamp()},
		FullEncodes:  s.FullEncodes,
		FakeWrites:   s.FakeWrites,
		Repeats:      s.Repeats,
		PictureBytes: s.PictureBytes,
		AudioBytes:   s.AudioBytes,
	})
}

func (r *eventReporter) JobComplete(s JobOutcome) {
	_ = r.handler(JobCompleteEvent{
		BaseEvent:    BaseEvent{EventType: EventTypeJobComplete, Time: NewTimestamp()},
		PictureAsset: s.PictureAsset,
		AudioAsset:   s.AudioAsset,
		FrameInfo:    s.FrameInfo,
		TotalSeconds: int64(s.TotalTime.Seconds()),
		AverageSpeed: s.AverageSpeed,
	})
}

func (r *eventReporter) Warning(message string) {
	_ = r.handler(WarningEvent{
		BaseEvent: BaseEvent{EventType: EventTypeWarning, Time: NewTimestamp()},
		Message:   message,
	})
}

func (r *eventReporter) Error(e ReporterError) {
	_ = r.handler(ErrorEvent{
		BaseEvent:  BaseEvent{EventType: EventTypeError, Time: NewTimestamp()},
		Title:      e.Title,
		Message:    e.Message,
		Context:    e.Context,
		Suggestion: e.Suggestion,
	})
}

func (r *eventReporter) Verbose(string) {}
