package reporter

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/dcpflow/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	progress   *progressbar.ProgressBar
	maxPercent float32
	verbose    bool
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	dim        *color.Color
}

// NewTerminalReporter creates a new terminal reporter with verbose mode disabled.
func NewTerminalReporter() *TerminalReporter {
	return NewTerminalReporterVerbose(false)
}

// NewTerminalReporterVerbose creates a new terminal reporter with configurable verbose mode.
func NewTerminalReporterVerbose(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

// labelWidth is the global width for all labels to ensure consistent alignment.
const labelWidth = 20

func (r *TerminalReporter) printLabel(label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", labelWidth, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("HARDWARE")
	r.printLabel("Hostname:", summary.Hostname)
	r.printLabel("Local threads:", fmt.Sprintf("%d", summary.LocalEncodingThreads))
}

func (r *TerminalReporter) EncodingConfig(summary EncodingConfigSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("ENCODING")
	r.printLabel("Output:", summary.OutputDir)
	r.printLabel("Resolution:", summary.Resolution)
	r.printLabel("Bandwidth:", fmt.Sprintf("%.1f Mbit/s", float64(summary.J2KBandwidth)/1_000_000))
	r.printLabel("Protocol version:", fmt.Sprintf("%d", summary.ProtocolVersion))
	discovery := "disabled"
	if summary.UseAnyServers {
		discovery = "broadcast"
	}
	r.printLabel("Discovery:", discovery)
	if len(summary.ExplicitServers) > 0 {
		r.printLabel("Explicit servers:", fmt.Sprintf("%v", summary.ExplicitServers))
	}
}

func (r *TerminalReporter) DiscoveryFound(summary ServerFoundSummary) {
	fmt.Printf("  %s server found: %s:%d (%d threads)\n",
		r.green.Sprint("+"), summary.Host, summary.Port, summary.Threads)
}

func (r *TerminalReporter) EncodingStarted(totalFrames int) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Encoding [",
			BarEnd:        "]",
		}),
	)
	_ = totalFrames
}

func (r *TerminalReporter) EncodingProgress(p ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := p.Percent()
	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}

	desc := fmt.Sprintf("%d/%d frames, speed %.1fx, fps %.1f, eta %s",
		p.FramesComplete, p.FramesTotal, p.Speed, p.FPS, util.FormatDuration(p.ETA))
	r.progress.Describe(desc)
}

func (r *TerminalReporter) WriterStats(summary WriterSummary) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.cyan.Println("WRITER")
	r.printLabel("Full encodes:", fmt.Sprintf("%d", summary.FullEncodes))
	r.printLabel("Fake-writes:", fmt.Sprintf("%d", summary.FakeWrites))
	r.printLabel("Repeats:", fmt.Sprintf("%d", summary.Repeats))
	r.printLabel("Picture bytes:", util.FormatBytes(summary.PictureBytes))
	r.printLabel("Audio bytes:", util.FormatBytes(summary.AudioBytes))
}

func (r *TerminalReporter) JobComplete(outcome JobOutcome) {
	fmt.Println()
	_, _ = r.cyan.Println("RESULTS")
	r.printLabel("Picture asset:", outcome.PictureAsset)
	r.printLabel("Audio asset:", outcome.AudioAsset)
	r.printLabel("Frame index:", outcome.FrameInfo)
	r.printLabel("Time:", fmt.Sprintf("%s (avg speed %.1fx)",
		util.FormatDuration(outcome.TotalTime), outcome.AverageSpeed))
	fmt.Println()
	fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint("DCP encode complete"))
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Println()
	_, _ = r.yellow.Printf("WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = r.red.Fprintf(os.Stderr, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Printf("  %s %s\n", r.dim.Sprint("›"), r.dim.Sprint(message))
}
