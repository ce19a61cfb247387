package worker

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

// JobQueue is the part of the job store the worker drives.
type JobQueue interface {
	ClaimNextJob(ctx context.Context) (domain.ReportJob, bool, error)
	CompleteJob(ctx context.Context, c domain.Completion) error
	RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int64, error)
}

// Session is a JobQueue bound to one connection. A session that returned
// an error is closed and replaced.
type Session interface {
	JobQueue
	Close() error
}

// Connector opens job store sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectFunc adapts a function to Connector.
type ConnectFunc func(ctx context.Context) (Session, error)

// Connect calls f.
func (f ConnectFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Pipeline produces the artifact of one claimed job.
type Pipeline interface {
	Run(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error)
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error)

// Run calls f.
func (f PipelineFunc) Run(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
	return f(ctx, job)
}

// errNoArtifact is recorded when a pipeline reports success without output.
var errNoArtifact = errors.New("report pipeline produced no artifact")
