package worker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
)

// SubmitStore is the part of the job store used by submissions.
type SubmitStore interface {
	FindExistingJob(ctx context.Context, address string, deficiencyOnly, includeAll bool) (domain.ExistingJob, bool, error)
	InsertJob(ctx context.Context, job *domain.ReportJob) error
}

// Notifier wakes the worker after a job is queued.
type Notifier interface {
	Notify()
}

// SubmitResult describes the job a submission resolved to.
type SubmitResult struct {
	JobID         uuid.UUID
	Status        domain.JobStatus
	DownloadReady bool

	// Reused is true when an existing job was returned instead of a new one.
	Reused bool
}

// Submitter queues report jobs, reusing an equivalent job when one exists.
type Submitter struct {
	store    SubmitStore
	notifier Notifier
	logger   *slog.Logger
}

// NewSubmitter creates a Submitter. notifier may be nil when no worker runs
// in this process.
func NewSubmitter(store SubmitStore, notifier Notifier, logger *slog.Logger) *Submitter {
	return &Submitter{store: store, notifier: notifier, logger: logger}
}

// Submit queues job unless an active job for the same target exists, or a
// completed one with a ready artifact does and force is false. Only
// include_all jobs for an address are matched; a job naming specific audits
// is always queued. The job's ID and status are assigned here.
func (s *Submitter) Submit(ctx context.Context, job domain.ReportJob, force bool) (SubmitResult, error) {
	job.JobID = uuid.New()
	job.Status = domain.JobStatusQueued
	job.Address = strings.TrimSpace(job.Address)
	job.LocationID = strings.TrimSpace(job.LocationID)
	if job.IncludeAll {
		job.AuditIDs = nil
	}
	if err := job.Validate(); err != nil {
		return SubmitResult{}, err
	}

	if job.Address != "" && job.IncludeAll {
		existing, found, err := s.store.FindExistingJob(ctx, job.Address, job.DeficiencyOnly, job.IncludeAll)
		if err != nil {
			return SubmitResult{}, err
		}
		if found && reusable(existing, force) {
			s.logger.Info("Reusing existing report job",
				"job_id", existing.JobID,
				"status", existing.Status,
				"address", job.Address,
			)
			return SubmitResult{
				JobID:         existing.JobID,
				Status:        existing.Status,
				DownloadReady: existing.ArtifactReady,
				Reused:        true,
			}, nil
		}
	}

	if err := s.store.InsertJob(ctx, &job); err != nil {
		return SubmitResult{}, err
	}
	if s.notifier != nil {
		s.notifier.Notify()
	}

	s.logger.Info("Queued report job",
		"job_id", job.JobID,
		"address", job.Address,
		"deficiency_only", job.DeficiencyOnly,
		"force", force,
	)
	return SubmitResult{JobID: job.JobID, Status: domain.JobStatusQueued}, nil
}

// reusable reports whether a lookup hit should be returned. Active jobs are
// always reused; force only bypasses completed ones.
func reusable(existing domain.ExistingJob, force bool) bool {
	if existing.Status.IsActive() {
		return true
	}
	return existing.Status == domain.JobStatusCompleted && existing.ArtifactReady && !force
}
