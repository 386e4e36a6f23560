// Package jobmgr implements the Job Manager (§4.9): a single-flight
// scheduler that runs at most one Job at a time, polling once per second,
// adapted from the teacher's sequential file-processing loop
// (internal/processing/orchestrator.go) generalized to arbitrary job
// bodies instead of one fixed encode pipeline.
package jobmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/five82/dcpflow/internal/model"
)

// pollInterval matches §4.9's "a scheduler thread polls once per second".
const pollInterval = time.Second

// RunFunc is the body of a Job. It receives a context cancelled when the
// job is asked to stop, and a progress callback in [0,1].
type RunFunc func(ctx context.Context, report func(fraction float64)) error

// Job tracks one long-running make-DCP operation.
type Job struct {
	ID          string
	Description string

	mu       sync.Mutex
	status   model.JobStatus
	progress float64
	errSummary string
	errDetail  string
	started  time.Time
	finished time.Time

	run    RunFunc
	cancel context.CancelFunc
}

// Status returns the job's current state.
func (j *Job) Status() model.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the job's current fractional progress in [0,1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Error returns the summary and detail strings recorded on failure.
func (j *Job) Error() (summary, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errSummary, j.errDetail
}

// Elapsed returns how long the job has been running, or ran in total once
// finished.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started.IsZero() {
		return 0
	}
	end := j.finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(j.started)
}

// Cancel requests that the job stop. It is a no-op before the job starts or
// after it finishes.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *Job) setStatus(s model.JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) setProgress(f float64) {
	j.mu.Lock()
	j.progress = f
	j.mu.Unlock()
}

// Manager is the Job Manager: an ordered list of Jobs with at
// most one RUNNING at a time.
type Manager struct {
	mu      sync.Mutex
	jobs    []*Job
	running bool
	nextID  int
}

// New constructs an empty Manager. Call Run to start its scheduler.
func New() *Manager {
	return &Manager{}
}

// Submit adds a new Job in the NEW state and returns it. The scheduler
// picks it up on its next poll once no other job is running.
func (m *Manager) Submit(description string, run RunFunc) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job := &Job{
		ID:          fmt.Sprintf("job-%d", m.nextID),
		Description: description,
		status:      model.JobNew,
		run:         run,
	}
	m.jobs = append(m.jobs, job)
	return job
}

// Jobs returns a snapshot of the submission-ordered job list.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Run blocks, polling once per second for a NEW job to start whenever none
// is RUNNING, until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(parent context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	var next *Job
	for _, j := range m.jobs {
		if j.Status() == model.JobNew {
			next = j
			break
		}
	}
	if next == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.runJob(parent, next)
}

func (m *Manager) runJob(parent context.Context, job *Job) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(parent)
	job.mu.Lock()
	job.cancel = cancel
	job.started = time.Now()
	job.mu.Unlock()
	defer cancel()

	job.setStatus(model.JobRunning)

	err := job.run(ctx, job.setProgress)

	job.mu.Lock()
	job.finished = time.Now()
	job.mu.Unlock()

	switch {
	case err == nil:
		job.setStatus(model.JobFinishedOK)
	case ctx.Err() != nil:
		job.setStatus(model.JobFinishedCancelled)
	default:
		job.mu.Lock()
		job.errSummary = "job failed"
		job.errDetail = err.Error()
		job.mu.Unlock()
		job.setStatus(model.JobFinishedError)
	}
}
