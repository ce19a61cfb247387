package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "poll interval too short", mutate: func(c *Config) { c.PollInterval = 500 * time.Millisecond }, wantErr: true},
		{name: "zero reconnect delay", mutate: func(c *Config) { c.ReconnectDelay = 0 }, wantErr: true},
		{name: "max delay below delay", mutate: func(c *Config) { c.MaxReconnectDelay = time.Second }, wantErr: true},
		{name: "negative attempts", mutate: func(c *Config) { c.ReconnectAttempts = -1 }, wantErr: true},
		{name: "unlimited attempts", mutate: func(c *Config) { c.ReconnectAttempts = 0 }},
		{name: "stale threshold too short", mutate: func(c *Config) { c.StaleJobThreshold = time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestController_NotifyCollapses(t *testing.T) {
	c := NewController(context.Background())
	c.Notify()
	c.Notify()
	assert.Len(t, c.wake, 1)

	assert.False(t, c.Stopped())
	c.Stop()
	c.Stop()
	assert.True(t, c.Stopped())
}

// fakeQueue is an in-memory job store session.
type fakeQueue struct {
	mu          sync.Mutex
	jobs        []domain.ReportJob
	claimErrs   []error
	undecodable []uuid.UUID
	completions []domain.Completion
	completeErr error
	recovered   int
	closed      int
	onComplete  func()
}

func (q *fakeQueue) ClaimNextJob(ctx context.Context) (domain.ReportJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.claimErrs) > 0 {
		err := q.claimErrs[0]
		q.claimErrs = q.claimErrs[1:]
		return domain.ReportJob{}, false, err
	}
	if len(q.undecodable) > 0 {
		id := q.undecodable[0]
		q.undecodable = q.undecodable[1:]
		return domain.ReportJob{JobID: id}, true,
			domain.Errorf(domain.EDATALOAD, "ClaimNextJob", "failed to decode claimed job: bad cover json")
	}
	if len(q.jobs) == 0 {
		return domain.ReportJob{}, false, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true, nil
}

func (q *fakeQueue) CompleteJob(ctx context.Context, c domain.Completion) error {
	q.mu.Lock()
	q.completions = append(q.completions, c)
	err, hook := q.completeErr, q.onComplete
	q.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (q *fakeQueue) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recovered++
	return 0, nil
}

func (q *fakeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed++
	return nil
}

func (q *fakeQueue) snapshot() []domain.Completion {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Completion(nil), q.completions...)
}

type fakeConnector struct {
	mu    sync.Mutex
	queue *fakeQueue
	fails int
	calls int
}

func (c *fakeConnector) Connect(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fails > 0 {
		c.fails--
		return nil, domain.Errorf(domain.ETRANSIENT, "Connect", "connection refused")
	}
	return c.queue, nil
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReconnectDelay = time.Millisecond
	cfg.MaxReconnectDelay = 5 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newTestWorker(t *testing.T, conn Connector, p Pipeline) *Worker {
	t.Helper()
	w, err := New(conn, p, DefaultConfig(), testLogger())
	require.NoError(t, err)
	w.config = testConfig()
	return w
}

func newJob(deficiencyOnly bool) domain.ReportJob {
	return domain.ReportJob{JobID: uuid.New(), Address: "100 Main St", DeficiencyOnly: deficiencyOnly, IncludeAll: true}
}

// runUntil runs w until cond holds, then stops it.
func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()
	ctrl := NewController(context.Background())
	w.Start(ctrl)
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
	w.Stop(ctrl)
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_CompletesEachJobOnce(t *testing.T) {
	good, bad, empty, panicky := newJob(false), newJob(true), newJob(false), newJob(false)
	queue := &fakeQueue{jobs: []domain.ReportJob{good, bad, empty, panicky}}

	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		switch job.JobID {
		case bad.JobID:
			return nil, domain.Wrap(domain.ErrNoData, domain.EDATALOAD, "jobs.Assemble", "no audits found for 100 Main St")
		case empty.JobID:
			return &domain.Artifact{Filename: "audit_report.pdf"}, nil
		case panicky.JobID:
			panic("boom")
		}
		return &domain.Artifact{Filename: job.ArtifactFilename(), Mime: domain.MimePDF, Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, &fakeConnector{queue: queue}, pipeline)
	runUntil(t, w, func() bool { return len(queue.snapshot()) == 4 })

	got := queue.snapshot()
	require.Len(t, got, 4)

	assert.Equal(t, good.JobID, got[0].JobID)
	assert.Equal(t, domain.JobStatusCompleted, got[0].Status)
	assert.Equal(t, "audit_report.pdf", got[0].Artifact.Filename)

	assert.Equal(t, domain.JobStatusFailed, got[1].Status)
	assert.Contains(t, got[1].Message, "no audits found for 100 Main St")
	assert.Nil(t, got[1].Artifact)

	assert.Equal(t, domain.JobStatusFailed, got[2].Status)
	assert.Equal(t, errNoArtifact.Error(), got[2].Message)

	assert.Equal(t, domain.JobStatusFailed, got[3].Status)
	assert.Contains(t, got[3].Message, "panicked")
}

func TestWorker_ReconnectsAfterClaimError(t *testing.T) {
	job := newJob(true)
	queue := &fakeQueue{
		jobs:      []domain.ReportJob{job},
		claimErrs: []error{errors.New("driver: bad connection")},
	}
	conn := &fakeConnector{queue: queue, fails: 2}
	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		return &domain.Artifact{Filename: "deficiency_list.pdf", Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, conn, pipeline)
	runUntil(t, w, func() bool { return len(queue.snapshot()) == 1 })

	assert.Equal(t, 4, conn.connects(), "two refused, one initial, one after the claim error")
	queue.mu.Lock()
	defer queue.mu.Unlock()
	assert.GreaterOrEqual(t, queue.closed, 1, "session dropped after claim error")
	assert.Equal(t, 2, queue.recovered, "stale jobs recovered on each connect")
}

func TestWorker_FailsUndecodableClaim(t *testing.T) {
	broken := uuid.New()
	next := newJob(false)
	queue := &fakeQueue{undecodable: []uuid.UUID{broken}, jobs: []domain.ReportJob{next}}
	conn := &fakeConnector{queue: queue}
	ran := 0
	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		ran++
		return &domain.Artifact{Filename: "audit_report.pdf", Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, conn, pipeline)
	runUntil(t, w, func() bool { return len(queue.snapshot()) == 2 })

	got := queue.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, broken, got[0].JobID)
	assert.Equal(t, domain.JobStatusFailed, got[0].Status)
	assert.Contains(t, got[0].Message, "failed to decode claimed job")
	assert.Equal(t, next.JobID, got[1].JobID)
	assert.Equal(t, domain.JobStatusCompleted, got[1].Status)
	assert.Equal(t, 1, ran, "the undecodable job never reaches the pipeline")
	assert.Equal(t, 1, conn.connects(), "session kept after the failed claim")
}

func TestWorker_CompleteFailureDropsSession(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.ReportJob{newJob(true)}, completeErr: errors.New("connection reset")}
	conn := &fakeConnector{queue: queue}
	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		return &domain.Artifact{Filename: "deficiency_list.pdf", Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, conn, pipeline)
	runUntil(t, w, func() bool { return conn.connects() >= 2 })

	assert.Len(t, queue.snapshot(), 1, "completion is attempted exactly once")
}

func TestWorker_JobSurvivesStop(t *testing.T) {
	queue := &fakeQueue{jobs: []domain.ReportJob{newJob(false)}}
	started := make(chan struct{})
	release := make(chan struct{})

	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.Artifact{Filename: "audit_report.pdf", Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, &fakeConnector{queue: queue}, pipeline)
	ctrl := NewController(context.Background())
	w.Start(ctrl)
	<-started
	ctrl.Stop()
	close(release)
	w.Stop(ctrl)

	got := queue.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, domain.JobStatusCompleted, got[0].Status, "job context is not canceled by stop")
}

func TestWorker_NotifyWakesIdleWorker(t *testing.T) {
	queue := &fakeQueue{}
	pipeline := PipelineFunc(func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
		return &domain.Artifact{Filename: "audit_report.pdf", Bytes: []byte("%PDF")}, nil
	})

	w := newTestWorker(t, &fakeConnector{queue: queue}, pipeline)
	w.config.PollInterval = time.Hour

	ctrl := NewController(context.Background())
	w.Start(ctrl)
	defer w.Stop(ctrl)

	// let the worker find the queue empty and block
	time.Sleep(20 * time.Millisecond)
	queue.mu.Lock()
	queue.jobs = append(queue.jobs, newJob(false))
	queue.mu.Unlock()
	ctrl.Notify()

	require.Eventually(t, func() bool { return len(queue.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_StopWhileIdle(t *testing.T) {
	w := newTestWorker(t, &fakeConnector{queue: &fakeQueue{}}, PipelineFunc(nil))
	w.config.PollInterval = time.Hour

	ctrl := NewController(context.Background())
	w.Start(ctrl)
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	w.Stop(ctrl)
	assert.Less(t, time.Since(start), time.Second)
}
