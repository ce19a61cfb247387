package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const reportJobColumns = `id, job_id, address, location_id, deficiency_only, include_all, audit_ids,
    notes, recommendations, cover, status, error, artifact_filename, artifact_mime,
    artifact_size, artifact_version, created_at, started_at, completed_at, updated_at`

func scanReportJob(row interface{ Scan(...interface{}) error }) (ReportJob, error) {
	var i ReportJob
	err := row.Scan(
		&i.ID,
		&i.JobID,
		&i.Address,
		&i.LocationID,
		&i.DeficiencyOnly,
		&i.IncludeAll,
		pq.Array(&i.AuditIDs),
		&i.Notes,
		&i.Recommendations,
		&i.Cover,
		&i.Status,
		&i.Error,
		&i.ArtifactFilename,
		&i.ArtifactMime,
		&i.ArtifactSize,
		&i.ArtifactVersion,
		&i.CreatedAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertReportJob = `-- name: InsertReportJob :one
INSERT INTO report_jobs (
    job_id, address, location_id, deficiency_only, include_all, audit_ids,
    notes, recommendations, cover, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'queued')
RETURNING ` + reportJobColumns

type InsertReportJobParams struct {
	JobID           uuid.UUID
	Address         string
	LocationID      sql.NullString
	DeficiencyOnly  bool
	IncludeAll      bool
	AuditIDs        []uuid.UUID
	Notes           sql.NullString
	Recommendations sql.NullString
	Cover           pqtype.NullRawMessage
}

func (q *Queries) InsertReportJob(ctx context.Context, arg InsertReportJobParams) (ReportJob, error) {
	auditIDs := arg.AuditIDs
	if auditIDs == nil {
		auditIDs = []uuid.UUID{}
	}
	row := q.db.QueryRowContext(ctx, insertReportJob,
		arg.JobID,
		arg.Address,
		arg.LocationID,
		arg.DeficiencyOnly,
		arg.IncludeAll,
		pq.Array(auditIDs),
		arg.Notes,
		arg.Recommendations,
		arg.Cover,
	)
	return scanReportJob(row)
}

const claimNextReportJob = `-- name: ClaimNextReportJob :one
WITH job AS (
    SELECT id
    FROM report_jobs
    WHERE status = 'queued'
    ORDER BY created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE report_jobs r
SET status = 'processing', started_at = NOW(), updated_at = NOW()
FROM job
WHERE r.id = job.id
RETURNING r.id, r.job_id, r.address, r.location_id, r.deficiency_only, r.include_all, r.audit_ids,
    r.notes, r.recommendations, r.cover, r.status, r.error, r.artifact_filename, r.artifact_mime,
    r.artifact_size, r.artifact_version, r.created_at, r.started_at, r.completed_at, r.updated_at`

// ClaimNextReportJob moves the oldest queued job to processing.
// Returns sql.ErrNoRows when the queue is empty.
func (q *Queries) ClaimNextReportJob(ctx context.Context) (ReportJob, error) {
	row := q.db.QueryRowContext(ctx, claimNextReportJob)
	return scanReportJob(row)
}

const completeReportJob = `-- name: CompleteReportJob :execrows
WITH target AS (
    SELECT id, address, location_id, deficiency_only
    FROM report_jobs
    WHERE job_id = $1
),
version_calc AS (
    SELECT COALESCE(MAX(rj.artifact_version), 0) + 1 AS next_version
    FROM report_jobs rj, target
    WHERE rj.address = target.address
      AND rj.deficiency_only = target.deficiency_only
      AND (target.address <> '' OR rj.location_id IS NOT DISTINCT FROM target.location_id)
)
UPDATE report_jobs r
SET status = $2::text,
    error = $3,
    artifact_filename = $4,
    artifact_mime = $5,
    artifact_bytes = $6,
    artifact_size = $7,
    artifact_version = CASE
        WHEN $2::text = 'completed' THEN (SELECT next_version FROM version_calc)
        ELSE r.artifact_version
    END,
    completed_at = NOW(),
    updated_at = NOW()
FROM target
WHERE r.id = target.id
  AND r.status = 'processing'`

type CompleteReportJobParams struct {
	JobID            uuid.UUID
	Status           string
	Error            sql.NullString
	ArtifactFilename sql.NullString
	ArtifactMime     sql.NullString
	ArtifactBytes    []byte
	ArtifactSize     sql.NullInt64
}

func (q *Queries) CompleteReportJob(ctx context.Context, arg CompleteReportJobParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, completeReportJob,
		arg.JobID,
		arg.Status,
		arg.Error,
		arg.ArtifactFilename,
		arg.ArtifactMime,
		arg.ArtifactBytes,
		arg.ArtifactSize,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getReportJob = `-- name: GetReportJob :one
SELECT ` + reportJobColumns + `
FROM report_jobs
WHERE job_id = $1`

func (q *Queries) GetReportJob(ctx context.Context, jobID uuid.UUID) (ReportJob, error) {
	row := q.db.QueryRowContext(ctx, getReportJob, jobID)
	return scanReportJob(row)
}

const getReportArtifact = `-- name: GetReportArtifact :one
SELECT artifact_filename, artifact_mime, artifact_bytes
FROM report_jobs
WHERE job_id = $1
  AND status = 'completed'
  AND artifact_bytes IS NOT NULL`

func (q *Queries) GetReportArtifact(ctx context.Context, jobID uuid.UUID) (ReportArtifact, error) {
	row := q.db.QueryRowContext(ctx, getReportArtifact, jobID)
	var i ReportArtifact
	err := row.Scan(&i.ArtifactFilename, &i.ArtifactMime, &i.ArtifactBytes)
	return i, err
}

const findActiveReportJob = `-- name: FindActiveReportJob :one
SELECT ` + reportJobColumns + `
FROM report_jobs
WHERE address = $1
  AND deficiency_only = $2
  AND include_all = $3
  AND status IN ('queued', 'processing')
ORDER BY created_at DESC
LIMIT 1`

type FindReportJobParams struct {
	Address        string
	DeficiencyOnly bool
	IncludeAll     bool
}

func (q *Queries) FindActiveReportJob(ctx context.Context, arg FindReportJobParams) (ReportJob, error) {
	row := q.db.QueryRowContext(ctx, findActiveReportJob, arg.Address, arg.DeficiencyOnly, arg.IncludeAll)
	return scanReportJob(row)
}

const findLatestCompletedReportJob = `-- name: FindLatestCompletedReportJob :one
SELECT ` + reportJobColumns + `
FROM report_jobs
WHERE address = $1
  AND deficiency_only = $2
  AND include_all = $3
  AND status = 'completed'
  AND artifact_size IS NOT NULL
ORDER BY completed_at DESC NULLS LAST
LIMIT 1`

func (q *Queries) FindLatestCompletedReportJob(ctx context.Context, arg FindReportJobParams) (ReportJob, error) {
	row := q.db.QueryRowContext(ctx, findLatestCompletedReportJob, arg.Address, arg.DeficiencyOnly, arg.IncludeAll)
	return scanReportJob(row)
}

const recoverStaleReportJobs = `-- name: RecoverStaleReportJobs :execrows
UPDATE report_jobs
SET status = 'queued', updated_at = NOW()
WHERE status = 'processing'
  AND started_at < NOW() - make_interval(secs => $1)`

func (q *Queries) RecoverStaleReportJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	result, err := q.db.ExecContext(ctx, recoverStaleReportJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
