// Package coordinator implements the Encode Coordinator (§4.6): a bounded
// producer/consumer queue feeding a pool of local and dynamically-bound
// remote workers, posting each frame to the Writer as its worker completes
// it (the Writer restores index order). Grounded on the worker-pool/semaphore dispatch shape of
// internal/encode/encode.go, adapted to the spec's mutex/condvar queue
// semantics (see queue.go) and its push-to-front retry path.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/five82/dcpflow/internal/discovery"
	"github.com/five82/dcpflow/internal/localworker"
	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/remoteworker"
)

// maxConsecutiveFailures is when a worker gives up and exits (§7
// LocalEncodeFailed recovery: "after 4 consecutive failures the worker
// thread exits").
const maxConsecutiveFailures = 4

// WriterSink is the subset of the Writer's contract the coordinator drives.
// Kept as an interface so internal/writer can be built and tested
// independently of the coordinator.
type WriterSink interface {
	WriteVideo(entry model.EncodeQueueEntry, encoded *model.EncodedFrame) error
	FakeWrite(index int, eye model.Eye) error
	Repeat(index int, eye model.Eye) error
	SubmitAudio(block model.PcmBlock) error
	Finish() error
}

// FrameCacheLookup answers whether a frame at (index, eye) is already
// present in a prior run's essence, per §4.8. A nil lookup disables
// fake-writes entirely.
type FrameCacheLookup func(index int, eye model.Eye) (*model.FrameInfo, bool)

// Config configures one Coordinator instance.
type Config struct {
	LocalThreads    int
	ProtocolVersion uint32
	J2KBandwidth    uint64
	FPS             float64
	Lookup          FrameCacheLookup
}

// Coordinator is the §4.6 Encode Coordinator. The zero value is not usable;
// construct with New.
type Coordinator struct {
	cfg    Config
	writer WriterSink
	queue  *workQueue

	submitMu     sync.Mutex
	lastWasFull  bool
	hasSubmitted bool

	rate *rateTracker

	workersWg sync.WaitGroup

	remoteMu      sync.Mutex
	remoteCancels map[string]context.CancelFunc
	finderSubID   int
	finder        *discovery.Finder

	firstErrMu sync.Mutex
	firstErr   error
}

// New constructs a Coordinator. Call Begin before submitting any work.
func New(cfg Config, writer WriterSink) *Coordinator {
	if cfg.LocalThreads <= 0 {
		cfg.LocalThreads = 1
	}
	return &Coordinator{
		cfg:           cfg,
		writer:        writer,
		rate:          newRateTracker(25),
		remoteCancels: make(map[string]context.CancelFunc),
	}
}

// Begin spawns the local worker pool sized to cfg.LocalThreads and, if
// finder is non-nil, subscribes to ServerFound events to bind remote
// workers dynamically as servers are discovered. The queue cap starts at
// 2 × LocalThreads and grows by 2 × each bound server's thread count, so it
// stays at 2 × total_worker_threads.
func (c *Coordinator) Begin(ctx context.Context, finder *discovery.Finder) {
	c.queue = newWorkQueue(2 * c.cfg.LocalThreads)
	c.finder = finder

	for i := 0; i < c.cfg.LocalThreads; i++ {
		c.workersWg.Add(1)
		go c.runLocalWorker(ctx)
	}

	if finder == nil {
		return
	}
	id, found := finder.Subscribe()
	c.finderSubID = id
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case desc, ok := <-found:
				if !ok {
					return
				}
				c.bindServer(ctx, desc)
			}
		}
	}()
}

// bindServer grows the queue capacity by twice the server's advertised
// thread count and spawns one remote worker goroutine per thread, each owning its
// own Backoff instance (§5: "backoff state ... owned solely by the
// thread(s) bound to that server").
func (c *Coordinator) bindServer(ctx context.Context, desc model.ServerDescription) {
	c.queue.mu.Lock()
	c.queue.cap += 2 * desc.Threads
	c.queue.mu.Unlock()

	serverCtx, cancel := context.WithCancel(ctx)
	c.remoteMu.Lock()
	c.remoteCancels[desc.String()] = cancel
	c.remoteMu.Unlock()

	for i := 0; i < desc.Threads; i++ {
		c.workersWg.Add(1)
		go c.runRemoteWorker(serverCtx, desc)
	}
}

// SubmitVideo implements §4.6's submit_video. For 3D, the caller submits
// LEFT then RIGHT for the same index before advancing; the coordinator
// tracks only the previous entry's tag for the REPEAT decision, trusting
// the caller for index/eye sequencing. A cached record is fake-written only
// when its hash equals the new frame's fingerprint; otherwise the frame is
// encoded again.
func (c *Coordinator) SubmitVideo(frame *model.PreparedFrame, sameAsPrevious bool) error {
	var entry model.EncodeQueueEntry
	if c.cfg.Lookup != nil {
		if info, hit := c.cfg.Lookup(frame.Index, frame.Eye); hit && info.Hash == model.Fingerprint(frame.Planes) {
			entry = model.EncodeQueueEntry{Tag: model.FAKE, Index: frame.Index, Eye: frame.Eye}
		}
	}
	if entry.Tag != model.FAKE {
		c.submitMu.Lock()
		repeatEligible := sameAsPrevious && c.hasSubmitted && c.lastWasFull
		c.submitMu.Unlock()
		if repeatEligible {
			entry = model.EncodeQueueEntry{Tag: model.REPEAT, Index: frame.Index, Eye: frame.Eye}
		} else {
			entry = model.EncodeQueueEntry{Tag: model.FULL, Index: frame.Index, Eye: frame.Eye, Frame: frame}
		}
	}

	c.submitMu.Lock()
	c.hasSubmitted = true
	c.lastWasFull = entry.Tag == model.FULL
	c.submitMu.Unlock()

	if !c.queue.push(entry) {
		return model.ErrCancelled
	}
	return nil
}

// SubmitAudio forwards a PCM block directly to the Writer (§4.6).
func (c *Coordinator) SubmitAudio(block model.PcmBlock) error {
	return c.writer.SubmitAudio(block)
}

// CurrentRate returns the sliding-window frames-per-second estimate over
// the last 25 completions (§4.6).
func (c *Coordinator) CurrentRate() float64 {
	return c.rate.current()
}

// Finish waits for the queue to drain naturally, stops the workers, and
// flushes the Writer. The first error observed by any worker or the Writer
// is returned.
func (c *Coordinator) Finish() error {
	c.queue.waitUntilDrained()
	c.queue.terminateNow()

	c.remoteMu.Lock()
	for _, cancel := range c.remoteCancels {
		cancel()
	}
	c.remoteMu.Unlock()

	c.workersWg.Wait()

	if err := c.writer.Finish(); err != nil {
		c.setFirstErr(err)
	}
	return c.err()
}

// Cancel asserts the terminate flag immediately, discarding any queued
// work, per §7's Cancelled recovery ("workers exit cleanly; finish()
// discards pending").
func (c *Coordinator) Cancel() {
	c.queue.terminateNow()
	c.remoteMu.Lock()
	for _, cancel := range c.remoteCancels {
		cancel()
	}
	c.remoteMu.Unlock()
}

func (c *Coordinator) setFirstErr(err error) {
	c.firstErrMu.Lock()
	defer c.firstErrMu.Unlock()
	if c.firstErr == nil {
		c.firstErr = err
	}
}

func (c *Coordinator) err() error {
	c.firstErrMu.Lock()
	defer c.firstErrMu.Unlock()
	return c.firstErr
}

func (c *Coordinator) handleEntry(entry model.EncodeQueueEntry) error {
	switch entry.Tag {
	case model.FAKE:
		return c.writer.FakeWrite(entry.Index, entry.Eye)
	case model.REPEAT:
		return c.writer.Repeat(entry.Index, entry.Eye)
	case model.FULL:
		encoded, err := localworker.EncodeLocal(entry.Frame, c.cfg.J2KBandwidth, c.cfg.FPS)
		if err != nil {
			return err
		}
		return c.writer.WriteVideo(entry, encoded)
	default:
		return fmt.Errorf("coordinator: unknown queue tag %v", entry.Tag)
	}
}

func (c *Coordinator) handleEntryRemote(entry model.EncodeQueueEntry, server model.ServerDescription) error {
	switch entry.Tag {
	case model.FAKE:
		return c.writer.FakeWrite(entry.Index, entry.Eye)
	case model.REPEAT:
		return c.writer.Repeat(entry.Index, entry.Eye)
	case model.FULL:
		encoded, err := remoteworker.EncodeRemote(entry.Frame, server, c.cfg.ProtocolVersion, c.cfg.J2KBandwidth, c.cfg.FPS)
		if err != nil {
			return err
		}
		return c.writer.WriteVideo(entry, encoded)
	default:
		return fmt.Errorf("coordinator: unknown queue tag %v", entry.Tag)
	}
}

func (c *Coordinator) runLocalWorker(ctx context.Context) {
	defer c.workersWg.Done()
	failures := 0
	for {
		entry, ok := c.queue.pop()
		if !ok {
			return
		}
		if err := c.handleEntry(entry); err != nil {
			failures++
			if errors.Is(err, model.ErrWriteIO) {
				c.setFirstErr(err)
				c.queue.terminateNow()
				return
			}
			if failures >= maxConsecutiveFailures {
				c.queue.pushFront(entry)
				return
			}
			c.queue.pushFront(entry)
			continue
		}
		failures = 0
		c.queue.complete()
		c.rate.recordCompletion()
	}
}

func (c *Coordinator) runRemoteWorker(ctx context.Context, server model.ServerDescription) {
	defer c.workersWg.Done()
	failures := 0
	backoff := remoteworker.NewBackoff()
	for {
		entry, ok := c.queue.pop()
		if !ok {
			return
		}
		err := c.handleEntryRemote(entry, server)
		if err != nil {
			failures++
			if errors.Is(err, model.ErrWriteIO) {
				c.setFirstErr(err)
				c.queue.terminateNow()
				return
			}
			if errors.Is(err, model.ErrProtocol) {
				// Server marked unusable for the job: stop binding workers
				// to it rather than retrying forever.
				c.queue.pushFront(entry)
				return
			}
			if failures >= maxConsecutiveFailures {
				c.queue.pushFront(entry)
				return
			}
			c.queue.pushFront(entry)
			select {
			case <-time.After(backoff.Next()):
			case <-ctx.Done():
				return
			}
			continue
		}
		failures = 0
		backoff.Reset()
		c.queue.complete()
		c.rate.recordCompletion()
	}
}
