// Package dcpflow provides a Go library for distributed JPEG2000 encoding
// of Digital Cinema Packages.
//
// A Pipeline wires together the Encode Coordinator, Writer, and (when
// enabled) Server Finder described in SPEC_FULL.md into the single
// operation a caller actually wants: hand it a source of prepared frames
// and PCM audio, get back a picture essence, an audio essence, and a
// FrameInfo index.
//
// Basic usage:
//
//	pipeline, err := dcpflow.New("output/", "work/", "logs/",
//	    dcpflow.WithLocalThreads(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := pipeline.EncodeDCP(ctx, input, nil)
package dcpflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/five82/dcpflow/internal/config"
	"github.com/five82/dcpflow/internal/coordinator"
	"github.com/five82/dcpflow/internal/discovery"
	"github.com/five82/dcpflow/internal/jobmgr"
	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/reporter"
	"github.com/five82/dcpflow/internal/writer"
)

// Pipeline is the main entry point for DCP encoding.
type Pipeline struct {
	config *config.Config
}

// Option configures a Pipeline.
type Option func(*config.Config)

// New creates a Pipeline writing essence and FrameInfo files under
// outputDir, spilling the Writer's ordering buffer under workDir.
func New(outputDir, workDir, logDir string, opts ...Option) (*Pipeline, error) {
	cfg := config.NewConfig(outputDir, workDir, logDir)
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{config: cfg}, nil
}

// WithLocalThreads sets the size of the local worker pool. Default is the
// number of logical CPUs.
func WithLocalThreads(n int) Option {
	return func(c *config.Config) { c.LocalEncodingThreads = n }
}

// WithServerPortBase sets the base TCP port for encode requests;
// port+1 carries discovery traffic.
func WithServerPortBase(port uint16) Option {
	return func(c *config.Config) { c.ServerPortBase = port }
}

// WithAnyServers enables or disables UDP broadcast discovery of remote
// encoding servers.
func WithAnyServers(enabled bool) Option {
	return func(c *config.Config) { c.UseAnyServers = enabled }
}

// WithExplicitServers adds hosts to probe for a server even when broadcast
// discovery finds nothing.
func WithExplicitServers(hosts []string) Option {
	return func(c *config.Config) { c.ExplicitServers = hosts }
}

// WithJ2KBandwidth sets the target picture-essence bitrate in bits per
// second, driving the per-frame JPEG2000 layer rate.
func WithJ2KBandwidth(bps uint64) Option {
	return func(c *config.Config) { c.J2KBandwidth = bps }
}

// WithProtocolVersion overrides the wire-protocol handshake value.
func WithProtocolVersion(v uint32) Option {
	return func(c *config.Config) { c.ProtocolVersion = v }
}

// VideoSource yields PreparedFrames in presentation order, one call per
// (index, eye) pair, returning nil once exhausted. sameAsPrevious mirrors
// §4.6's submit_video hint: the caller asserts this frame is pixel-identical
// to the one before it, letting the coordinator emit a REPEAT instead of a
// FULL encode.
type VideoSource interface {
	Next(index int, eye Eye) (frame *PreparedFrame, sameAsPrevious bool)
}

// AudioSource yields PcmBlocks in presentation order, returning nil once
// exhausted.
type AudioSource interface {
	Next() *PcmBlock
}

// PriorRun points at a previous run's output, enabling fake-writes for
// frames whose content hash is unchanged (§4.8).
type PriorRun struct {
	PictureEssencePath string
	FrameInfoPath      string
}

// JobInput describes one make-DCP operation's source material and target
// shape.
type JobInput struct {
	Video      VideoSource
	Audio      AudioSource
	Stereo     bool
	Resolution Resolution
	FPS        float64
	// FrameCount is the expected total frame count, used only to compute
	// percent-complete progress. Zero means indeterminate.
	FrameCount int
	Prior      *PriorRun
}

// Result is the outcome of a successful EncodeDCP call.
type Result struct {
	PictureAsset   string
	AudioAsset     string
	FrameInfoAsset string
	FullEncodes    int
	FakeWrites     int
	Repeats        int
	PictureBytes   uint64
	AudioBytes     uint64
	Duration       time.Duration
	AverageSpeed   float32
}

// EncodeDCP runs one make-DCP job to completion, delivering events to
// handler if non-nil. It blocks until the job finishes, fails, or ctx is
// cancelled.
func (p *Pipeline) EncodeDCP(ctx context.Context, input JobInput, handler EventHandler) (*Result, error) {
	var rep Reporter = reporter.NullReporter{}
	if handler != nil {
		rep = newEventReporter(handler)
	}
	return p.EncodeDCPWithReporter(ctx, input, rep)
}

// EncodeDCPWithReporter is EncodeDCP for callers that want the richer
// Reporter interface instead of the flattened EventHandler.
func (p *Pipeline) EncodeDCPWithReporter(ctx context.Context, input JobInput, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}

	host, _ := os.Hostname()
	rep.Hardware(reporter.HardwareSummary{
		Hostname:             host,
		LocalEncodingThreads: p.config.LocalEncodingThreads,
	})
	rep.EncodingConfig(reporter.EncodingConfigSummary{
		OutputDir:       p.config.OutputDir,
		Resolution:      input.Resolution.String(),
		J2KBandwidth:    p.config.J2KBandwidth,
		ProtocolVersion: p.config.ProtocolVersion,
		UseAnyServers:   p.config.UseAnyServers,
		ExplicitServers: p.config.ExplicitServers,
	})

	id := uuid.New().String()
	pictureAsset := fmt.Sprintf("%s/j2c_%s.mxf", p.config.OutputDir, id)
	audioAsset := fmt.Sprintf("%s/pcm_%s.mxf", p.config.OutputDir, id)
	frameInfoAsset := pictureAsset + ".frameinfo"

	wcfg := writer.Config{
		PictureEssencePath: pictureAsset,
		AudioEssencePath:   audioAsset,
		FrameInfoPath:      frameInfoAsset,
		Stereo:             input.Stereo,
		BufferCap:          8 * p.config.LocalEncodingThreads,
		SpillDir:           p.config.WorkDir,
		WarnFunc:           rep.Warning,
	}
	if input.Prior != nil {
		wcfg.PriorPictureEssencePath = input.Prior.PictureEssencePath
		wcfg.PriorFrameInfoPath = input.Prior.FrameInfoPath
	}
	w, err := writer.New(wcfg)
	if err != nil {
		rep.Error(reporter.ReporterError{Title: "writer setup failed", Message: err.Error()})
		return nil, err
	}

	var finder *discovery.Finder
	var finderCancel context.CancelFunc
	if p.config.UseAnyServers || len(p.config.ExplicitServers) > 0 {
		var finderCtx context.Context
		finderCtx, finderCancel = context.WithCancel(ctx)
		finder = discovery.New(p.config.DiscoveryPort(), p.config.UseAnyServers, p.config.ExplicitServers)
		go func() {
			if err := finder.Run(finderCtx); err != nil && finderCtx.Err() == nil {
				rep.Warning(fmt.Sprintf("discovery stopped: %v", err))
			}
		}()
		defer finderCancel()
	}

	ccfg := coordinator.Config{
		LocalThreads:    p.config.LocalEncodingThreads,
		ProtocolVersion: p.config.ProtocolVersion,
		J2KBandwidth:    p.config.J2KBandwidth,
		FPS:             input.FPS,
		Lookup:          w.PriorLookup(),
	}
	coord := coordinator.New(ccfg, w)

	mgr := jobmgr.New()
	job := mgr.Submit("make-DCP", func(jobCtx context.Context, report func(float64)) error {
		return p.runJob(jobCtx, coord, finder, input, rep, report)
	})

	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	go mgr.Run(schedCtx)

	p.reportProgressUntilDone(schedCtx, job, coord, input, rep)

	if summary, detail := job.Error(); summary != "" {
		rep.Error(reporter.ReporterError{Title: summary, Message: detail})
		return nil, fmt.Errorf("%s: %s", summary, detail)
	}
	if job.Status() == model.JobFinishedCancelled {
		return nil, model.ErrCancelled
	}

	outcome := p.writerOutcome(w)
	rep.WriterStats(outcome)
	result := &Result{
		PictureAsset:   pictureAsset,
		AudioAsset:     audioAsset,
		FrameInfoAsset: frameInfoAsset,
		FullEncodes:    outcome.FullEncodes,
		FakeWrites:     outcome.FakeWrites,
		Repeats:        outcome.Repeats,
		PictureBytes:   outcome.PictureBytes,
		AudioBytes:     outcome.AudioBytes,
		Duration:       job.Elapsed(),
	}
	if result.Duration > 0 && input.FPS > 0 {
		totalFrames := result.FullEncodes + result.FakeWrites + result.Repeats
		result.AverageSpeed = float32(float64(totalFrames) / input.FPS / result.Duration.Seconds())
	}
	rep.JobComplete(reporter.JobOutcome{
		PictureAsset: pictureAsset,
		AudioAsset:   audioAsset,
		FrameInfo:    frameInfoAsset,
		TotalTime:    result.Duration,
		AverageSpeed: result.AverageSpeed,
	})
	return result, nil
}

// writerStatsCollector is implemented by internal/writer so the pipeline
// can report final counts without internal/writer depending on the
// reporter package for anything beyond its own Config.
type writerStatsCollector interface {
	Stats() (full, fake, repeats int, pictureBytes, audioBytes uint64)
}

func (p *Pipeline) writerOutcome(w writerStatsCollector) reporter.WriterSummary {
	full, fake, repeats, pictureBytes, audioBytes := w.Stats()
	return reporter.WriterSummary{
		FullEncodes:  full,
		FakeWrites:   fake,
		Repeats:      repeats,
		PictureBytes: pictureBytes,
		AudioBytes:   audioBytes,
	}
}

// runJob drives the coordinator/writer pair to completion from input,
// reporting discovered servers as they arrive. It is the RunFunc body
// handed to the Job Manager. Video and audio submission run concurrently
// under an errgroup.Group so either side's failure cancels the other and
// surfaces first, the same shape internal/processing/chunked.go uses for
// its phase-1 fan-out.
func (p *Pipeline) runJob(ctx context.Context, coord *coordinator.Coordinator, finder *discovery.Finder, input JobInput, rep Reporter, report func(float64)) error {
	coord.Begin(ctx, finder)

	if finder != nil {
		go p.relayServerFound(ctx, finder, rep)
	}

	rep.EncodingStarted(input.FrameCount)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.pumpAudio(gctx, coord, input.Audio)
	})
	g.Go(func() error {
		return p.pumpVideo(gctx, coord, input, report)
	})
	submitErr := g.Wait()

	finishErr := coord.Finish()

	if submitErr != nil {
		return submitErr
	}
	return finishErr
}

func (p *Pipeline) pumpVideo(ctx context.Context, coord *coordinator.Coordinator, input JobInput, report func(float64)) error {
	index := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		eyes := []Eye{MONO}
		if input.Stereo {
			eyes = []Eye{LEFT, RIGHT}
		}

		anyFrame := false
		for _, eye := range eyes {
			frame, sameAsPrevious := input.Video.Next(index, eye)
			if frame == nil {
				continue
			}
			anyFrame = true
			if err := coord.SubmitVideo(frame, sameAsPrevious); err != nil {
				return err
			}
		}
		if !anyFrame {
			return nil
		}
		index++
		if input.FrameCount > 0 {
			report(float64(index) / float64(input.FrameCount))
		}
	}
}

func (p *Pipeline) pumpAudio(ctx context.Context, coord *coordinator.Coordinator, source AudioSource) error {
	if source == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		block := source.Next()
		if block == nil {
			return nil
		}
		if err := coord.SubmitAudio(*block); err != nil {
			return err
		}
	}
}

func (p *Pipeline) relayServerFound(ctx context.Context, finder *discovery.Finder, rep Reporter) {
	id, found := finder.Subscribe()
	defer finder.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case desc, ok := <-found:
			if !ok {
				return
			}
			rep.DiscoveryFound(reporter.ServerFoundSummary{
				Host:    desc.Host,
				Port:    desc.Port,
				Threads: desc.Threads,
			})
		}
	}
}

// reportProgressUntilDone polls the Job Manager once per second (matching
// §4.9's scheduler cadence) and pushes a ProgressSnapshot built from the
// job's fractional progress and the coordinator's sliding-window rate.
func (p *Pipeline) reportProgressUntilDone(ctx context.Context, job *jobmgr.Job, coord *coordinator.Coordinator, input JobInput, rep Reporter) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		status := job.Status()
		fps := coord.CurrentRate()
		speed := float32(0)
		if input.FPS > 0 {
			speed = float32(fps / input.FPS)
		}
		rep.EncodingProgress(reporter.ProgressSnapshot{
			FramesTotal:    input.FrameCount,
			FramesComplete: int(job.Progress() * float64(input.FrameCount)),
			FPS:            float32(fps),
			Speed:          speed,
		})
		if status == model.JobFinishedOK || status == model.JobFinishedError || status == model.JobFinishedCancelled {
			return
		}
	}
}
