package jobmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/five82/dcpflow/internal/model"
)

func TestManager_RunsSingleJobToCompletion(t *testing.T) {
	m := New()
	job := m.Submit("test job", func(ctx context.Context, report func(float64)) error {
		report(0.5)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go m.Run(ctx)

	deadline := time.After(2 * time.Second)
	for job.Status() != model.JobFinishedOK {
		select {
		case <-deadline:
			t.Fatalf("job did not finish in time, status=%v", job.Status())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestManager_OnlyOneJobRunsAtATime(t *testing.T) {
	m := New()
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	run := func(ctx context.Context, report func(float64)) error {
		started <- struct{}{}
		<-release
		return nil
	}
	j1 := m.Submit("first", run)
	j2 := m.Submit("second", run)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go m.Run(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started")
	}

	if j2.Status() == model.JobRunning {
		t.Fatal("second job should not start while first is running")
	}

	close(release)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second job never started after first finished")
	}

	_ = j1
}

func TestJob_FailureRecordsErrorDetail(t *testing.T) {
	m := New()
	job := m.Submit("failing job", func(ctx context.Context, report func(float64)) error {
		return errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go m.Run(ctx)

	deadline := time.After(2 * time.Second)
	for job.Status() == model.JobNew || job.Status() == model.JobRunning {
		select {
		case <-deadline:
			t.Fatalf("job did not finish in time, status=%v", job.Status())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if job.Status() != model.JobFinishedError {
		t.Fatalf("expected FINISHED_ERROR, got %v", job.Status())
	}
	_, detail := job.Error()
	if detail != "boom" {
		t.Fatalf("expected error detail %q, got %q", "boom", detail)
	}
}
