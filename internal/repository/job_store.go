package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// JobStore is the durable report job queue.
type JobStore struct {
	q *Queries
}

// NewJobStore creates a JobStore over a pool, a dedicated connection, or a transaction.
func NewJobStore(db DBTX) *JobStore {
	return &JobStore{q: New(db)}
}

// =============================================================================
// Queue operations
// =============================================================================

// InsertJob stores job as queued and fills in its creation time.
func (s *JobStore) InsertJob(ctx context.Context, job *domain.ReportJob) error {
	const op = "repository.InsertJob"

	if err := job.Validate(); err != nil {
		return err
	}

	cover, err := encodeCover(job.Cover)
	if err != nil {
		return domain.Internal(err, op, "failed to encode cover overrides")
	}

	row, err := s.q.InsertReportJob(ctx, InsertReportJobParams{
		JobID:           job.JobID,
		Address:         job.Address,
		LocationID:      nullString(job.LocationID),
		DeficiencyOnly:  job.DeficiencyOnly,
		IncludeAll:      job.IncludeAll,
		AuditIDs:        job.AuditIDs,
		Notes:           nullString(job.Notes),
		Recommendations: nullString(job.Recommendations),
		Cover:           cover,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to insert report job")
	}

	job.Status = domain.JobStatus(row.Status)
	job.CreatedAt = row.CreatedAt
	return nil
}

// ClaimNextJob atomically moves the oldest queued job to processing.
// Concurrent claimers never receive the same job. If the claimed row cannot
// be decoded, found is still true and the job carries only its ID, so the
// caller can fail it.
func (s *JobStore) ClaimNextJob(ctx context.Context) (domain.ReportJob, bool, error) {
	const op = "repository.ClaimNextJob"

	row, err := s.q.ClaimNextReportJob(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReportJob{}, false, nil
	}
	if err != nil {
		return domain.ReportJob{}, false, domain.Wrap(err, domain.ETRANSIENT, op, "failed to claim report job")
	}

	job, err := toDomainJob(row)
	if err != nil {
		return domain.ReportJob{JobID: row.JobID}, true, domain.Wrap(err, domain.EDATALOAD, op, "failed to decode claimed job")
	}
	return job, true, nil
}

// CompleteJob applies the terminal update to a processing job.
// Successful completions are assigned the next artifact version for the
// job's address and report kind.
func (s *JobStore) CompleteJob(ctx context.Context, c domain.Completion) error {
	const op = "repository.CompleteJob"

	params := CompleteReportJobParams{
		JobID:  c.JobID,
		Status: c.Status.String(),
	}

	switch c.Status {
	case domain.JobStatusCompleted:
		if c.Artifact == nil || len(c.Artifact.Bytes) == 0 {
			return domain.Errorf(domain.EPERSIST, op, "completed job %s has no artifact bytes", c.JobID)
		}
		if strings.TrimSpace(c.Artifact.Filename) == "" {
			return domain.Errorf(domain.EPERSIST, op, "completed job %s has no artifact filename", c.JobID)
		}
		mime := c.Artifact.Mime
		if mime == "" {
			mime = domain.MimePDF
		}
		params.ArtifactFilename = nullString(c.Artifact.Filename)
		params.ArtifactMime = nullString(mime)
		params.ArtifactBytes = c.Artifact.Bytes
		params.ArtifactSize = sql.NullInt64{Int64: c.Artifact.Size(), Valid: true}
	case domain.JobStatusFailed:
		msg := c.Message
		if msg == "" {
			msg = "report generation failed"
		}
		params.Error = nullString(msg)
	default:
		return domain.Errorf(domain.EPERSIST, op, "invalid terminal status %q", c.Status)
	}

	n, err := s.q.CompleteReportJob(ctx, params)
	if err != nil {
		return domain.Wrap(err, domain.EPERSIST, op, "failed to complete report job")
	}
	if n == 0 {
		return domain.Errorf(domain.EPERSIST, op, "job %s is not processing", c.JobID)
	}
	return nil
}

// RecoverStaleJobs requeues processing jobs started longer than threshold ago.
func (s *JobStore) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	n, err := s.q.RecoverStaleReportJobs(ctx, threshold.Seconds())
	if err != nil {
		return 0, domain.Wrap(err, domain.ETRANSIENT, "repository.RecoverStaleJobs", "failed to recover stale jobs")
	}
	return n, nil
}

// =============================================================================
// Lookups
// =============================================================================

// FindExistingJob returns the job a new request should reuse, if any.
// An active job is preferred over the most recently completed one.
func (s *JobStore) FindExistingJob(ctx context.Context, address string, deficiencyOnly, includeAll bool) (domain.ExistingJob, bool, error) {
	const op = "repository.FindExistingJob"

	arg := FindReportJobParams{Address: address, DeficiencyOnly: deficiencyOnly, IncludeAll: includeAll}

	row, err := s.q.FindActiveReportJob(ctx, arg)
	if err == nil {
		return domain.ExistingJob{JobID: row.JobID, Status: domain.JobStatus(row.Status)}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ExistingJob{}, false, domain.Internal(err, op, "failed to look up active job")
	}

	row, err = s.q.FindLatestCompletedReportJob(ctx, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExistingJob{}, false, nil
	}
	if err != nil {
		return domain.ExistingJob{}, false, domain.Internal(err, op, "failed to look up completed job")
	}

	return domain.ExistingJob{
		JobID:         row.JobID,
		Status:        domain.JobStatus(row.Status),
		ArtifactReady: row.ArtifactSize.Valid && row.ArtifactSize.Int64 > 0,
	}, true, nil
}

// GetJob returns the persisted view of a job without its artifact bytes.
func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (domain.JobRecord, error) {
	const op = "repository.GetJob"

	row, err := s.q.GetReportJob(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobRecord{}, domain.NotFound(op, "report job", jobID.String())
	}
	if err != nil {
		return domain.JobRecord{}, domain.Internal(err, op, "failed to load report job")
	}
	return toRecord(row)
}

// GetArtifact returns the stored artifact of a completed job.
func (s *JobStore) GetArtifact(ctx context.Context, jobID uuid.UUID) (domain.Artifact, error) {
	const op = "repository.GetArtifact"

	row, err := s.q.GetReportArtifact(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Artifact{}, domain.Conflict(op, "report artifact is not ready")
	}
	if err != nil {
		return domain.Artifact{}, domain.Internal(err, op, "failed to load report artifact")
	}

	mime := row.ArtifactMime.String
	if mime == "" {
		mime = domain.MimePDF
	}
	return domain.Artifact{
		Filename: row.ArtifactFilename.String,
		Mime:     mime,
		Bytes:    row.ArtifactBytes,
	}, nil
}

// =============================================================================
// Conversion helpers
// =============================================================================

func toDomainJob(row ReportJob) (domain.ReportJob, error) {
	cover, err := decodeCover(row.Cover)
	if err != nil {
		return domain.ReportJob{}, err
	}
	return domain.ReportJob{
		JobID:           row.JobID,
		Address:         row.Address,
		LocationID:      row.LocationID.String,
		DeficiencyOnly:  row.DeficiencyOnly,
		IncludeAll:      row.IncludeAll,
		AuditIDs:        row.AuditIDs,
		Notes:           row.Notes.String,
		Recommendations: row.Recommendations.String,
		Cover:           cover,
		Status:          domain.JobStatus(row.Status),
		CreatedAt:       row.CreatedAt,
	}, nil
}

func toRecord(row ReportJob) (domain.JobRecord, error) {
	job, err := toDomainJob(row)
	if err != nil {
		return domain.JobRecord{}, domain.Internal(err, "repository.toRecord", "failed to decode report job")
	}
	rec := domain.JobRecord{
		ReportJob:        job,
		Error:            row.Error.String,
		ArtifactFilename: row.ArtifactFilename.String,
		ArtifactMime:     row.ArtifactMime.String,
		ArtifactSize:     row.ArtifactSize.Int64,
		ArtifactVersion:  int(row.ArtifactVersion.Int32),
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		rec.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func encodeCover(c domain.CoverOverrides) (pqtype.NullRawMessage, error) {
	if c.IsEmpty() {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func decodeCover(raw pqtype.NullRawMessage) (domain.CoverOverrides, error) {
	var c domain.CoverOverrides
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw.RawMessage, &c); err != nil {
		return c, fmt.Errorf("decode cover: %w", err)
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
