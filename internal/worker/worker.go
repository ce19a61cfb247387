// Package worker drives report jobs from the durable queue.
//
// A single Worker claims one job at a time, runs it through the report
// pipeline and records exactly one terminal update per claimed job. Job
// store outages are retried with backoff and never stop the loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/avast/retry-go/v4"
)

// Worker runs the report job loop.
type Worker struct {
	connector Connector
	pipeline  Pipeline
	config    Config
	logger    *slog.Logger

	done chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(connector Connector, pipeline Pipeline, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		connector: connector,
		pipeline:  pipeline,
		config:    config,
		logger:    logger,
	}, nil
}

// Start runs the loop on its own goroutine until ctrl is stopped.
func (w *Worker) Start(ctrl *Controller) {
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.Run(ctrl)
	}()
	w.logger.Info("Worker started", "poll_interval", w.config.PollInterval)
}

// Stop signals the loop to exit and waits for the running job, if any,
// for at most ShutdownTimeout.
func (w *Worker) Stop(ctrl *Controller) {
	w.logger.Info("Stopping worker...")
	ctrl.Stop()
	if w.done == nil {
		return
	}

	select {
	case <-w.done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, a job may still be running")
	}
}

// Run executes the loop on the calling goroutine until ctrl is stopped.
func (w *Worker) Run(ctrl *Controller) {
	var (
		sess      Session
		connected bool
	)
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	for !ctrl.Stopped() {
		if sess == nil {
			s, err := w.connect(ctrl.Context())
			if err != nil {
				if ctrl.Stopped() {
					return
				}
				w.logger.Error("Job store unavailable", "error", err)
				w.wait(ctrl, w.config.ReconnectDelay)
				continue
			}
			sess = s
			if connected {
				metrics.WorkerReconnected()
				w.logger.Info("Reconnected to job store")
			}
			connected = true
			w.recoverStaleJobs(ctrl.Context(), sess)
		}

		job, found, err := sess.ClaimNextJob(ctrl.Context())
		if err != nil && found {
			// The row is already processing, so it is failed here rather than left to stale recovery.
			if err := w.failClaimed(ctrl.Context(), sess, job, err); err != nil {
				sess.Close()
				sess = nil
			}
			continue
		}
		if err != nil {
			if ctrl.Stopped() {
				return
			}
			w.logger.Error("Failed to claim job", "error", err)
			sess.Close()
			sess = nil
			w.wait(ctrl, w.config.ReconnectDelay)
			continue
		}
		if !found {
			w.logger.Debug("No queued jobs")
			w.wait(ctrl, w.config.PollInterval)
			continue
		}

		if err := w.process(ctrl.Context(), sess, job); err != nil {
			sess.Close()
			sess = nil
		}
	}
}

// connect opens a session, retrying with exponential backoff.
func (w *Worker) connect(ctx context.Context) (Session, error) {
	var sess Session
	err := retry.Do(
		func() error {
			s, err := w.connector.Connect(ctx)
			if err != nil {
				return err
			}
			sess = s
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(w.config.ReconnectAttempts)),
		retry.Delay(w.config.ReconnectDelay),
		retry.MaxDelay(w.config.MaxReconnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("Job store connection failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (w *Worker) recoverStaleJobs(ctx context.Context, sess Session) {
	count, err := sess.RecoverStaleJobs(ctx, w.config.StaleJobThreshold)
	if err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
		return
	}
	if count > 0 {
		w.logger.Warn("Recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
}

// wait blocks for d, or until a submission wakes the worker or it stops.
func (w *Worker) wait(ctrl *Controller, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctrl.Context().Done():
	case <-ctrl.wake:
	case <-timer.C:
	}
}

// process runs one claimed job to its terminal update. The job is not
// canceled by a stop signal; it always finishes before the loop exits.
// The returned error is the CompleteJob failure, if any.
func (w *Worker) process(ctx context.Context, sess Session, job domain.ReportJob) error {
	jobCtx := context.WithoutCancel(ctx)
	logger := w.logger.With("job_id", job.JobID, "address", job.Address, "deficiency_only", job.DeficiencyOnly)
	logger.Info("Processing job")
	start := time.Now()

	completion := w.execute(jobCtx, job, logger)
	elapsed := time.Since(start)

	if err := sess.CompleteJob(jobCtx, completion); err != nil {
		logger.Error("Failed to record job completion", "status", completion.Status, "error", err)
		metrics.JobFailed(job.Kind(), elapsed)
		return err
	}

	if completion.Status == domain.JobStatusCompleted {
		metrics.JobCompleted(job.Kind(), elapsed)
		logger.Info("Job completed", "duration", elapsed)
	} else {
		metrics.JobFailed(job.Kind(), elapsed)
		logger.Error("Job failed", "duration", elapsed, "error", completion.Message)
	}
	return nil
}

// failClaimed records the terminal failure of a job that was claimed but
// could not be loaded.
func (w *Worker) failClaimed(ctx context.Context, sess Session, job domain.ReportJob, cause error) error {
	logger := w.logger.With("job_id", job.JobID)
	logger.Error("Claimed job could not be decoded", "error", cause)

	completion := domain.Failed(job.JobID, cause)
	if err := sess.CompleteJob(context.WithoutCancel(ctx), completion); err != nil {
		logger.Error("Failed to record job completion", "status", completion.Status, "error", err)
		return err
	}
	metrics.JobFailed(job.Kind(), 0)
	return nil
}

// execute runs the pipeline and builds the single terminal update for job.
// A panic in the pipeline fails the job instead of the worker.
func (w *Worker) execute(ctx context.Context, job domain.ReportJob, logger *slog.Logger) (c domain.Completion) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Report pipeline panicked", "panic", r)
			c = domain.Failed(job.JobID, fmt.Errorf("report pipeline panicked: %v", r))
		}
	}()

	artifact, err := w.pipeline.Run(ctx, job)
	if err != nil {
		return domain.Failed(job.JobID, err)
	}
	if artifact == nil || artifact.Size() == 0 {
		return domain.Failed(job.JobID, errNoArtifact)
	}
	return domain.Completed(job.JobID, artifact)
}
