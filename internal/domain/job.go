// Package domain contains core business types and interfaces.
//
// This file defines the report job lifecycle: a job is created queued by the
// submission path, claimed exactly once by the worker, and finished as either
// completed (with an artifact) or failed (with a message).
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Job Status
// =============================================================================

// JobStatus represents the lifecycle state of a report job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsActive returns true while a job is waiting for or held by the worker.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// IsTerminal returns true once a job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// =============================================================================
// Artifact MIME types
// =============================================================================

const (
	MimePDF = "application/pdf"
	MimeZIP = "application/zip"
)

// =============================================================================
// Report Job
// =============================================================================

// CoverOverrides are optional cover-page values supplied with a job request.
// Empty fields fall back to the location profile or the audit data.
type CoverOverrides struct {
	BuildingOwner string `json:"building_owner,omitempty"`
	Street        string `json:"street,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Zip           string `json:"zip,omitempty"`
	ContactName   string `json:"contact_name,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`
}

// IsEmpty returns true if no override is set.
func (c CoverOverrides) IsEmpty() bool {
	return c == CoverOverrides{}
}

// ReportJob is one request to produce a report for an address or location.
// A job is immutable once claimed except for its terminal fields.
type ReportJob struct {
	JobID           uuid.UUID
	Address         string
	LocationID      string
	DeficiencyOnly  bool
	IncludeAll      bool
	AuditIDs        []uuid.UUID
	Notes           string
	Recommendations string
	Cover           CoverOverrides
	Status          JobStatus
	CreatedAt       time.Time
}

// Validate checks the invariants a job must satisfy before it is queued.
func (j *ReportJob) Validate() error {
	ve := &ValidationError{Op: "ReportJob.Validate"}
	if j.JobID == uuid.Nil {
		ve.Add("job_id", "Job ID is required")
	}
	if strings.TrimSpace(j.Address) == "" && strings.TrimSpace(j.LocationID) == "" {
		ve.Add("address", "Address or location is required")
	}
	if !j.IncludeAll && len(j.AuditIDs) == 0 {
		ve.Add("audit_ids", "Select at least one audit or include all audits")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// Kind returns a short label used in logs and metrics.
func (j *ReportJob) Kind() string {
	if j.DeficiencyOnly {
		return "deficiency_list"
	}
	return "audit_report"
}

// ArtifactFilename is the file name stored with a completed job.
func (j *ReportJob) ArtifactFilename() string {
	if j.DeficiencyOnly {
		return "deficiency_list.pdf"
	}
	return "audit_report.pdf"
}

// =============================================================================
// Completion and lookup records
// =============================================================================

// Artifact is the persisted output of a completed job.
// Only the rendered PDF is stored; full-report archives are rebuilt on download.
type Artifact struct {
	Filename string
	Mime     string
	Bytes    []byte
}

// Size returns the artifact size in bytes.
func (a *Artifact) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Bytes))
}

// Completion is the single terminal update applied to a claimed job.
type Completion struct {
	JobID    uuid.UUID
	Status   JobStatus
	Message  string
	Artifact *Artifact
}

// Completed builds a successful completion.
func Completed(jobID uuid.UUID, artifact *Artifact) Completion {
	return Completion{JobID: jobID, Status: JobStatusCompleted, Artifact: artifact}
}

// Failed builds a failed completion carrying err's message.
func Failed(jobID uuid.UUID, err error) Completion {
	msg := "report generation failed"
	if err != nil {
		msg = err.Error()
	}
	return Completion{JobID: jobID, Status: JobStatusFailed, Message: msg}
}

// ExistingJob is the result of a deduplication lookup.
type ExistingJob struct {
	JobID         uuid.UUID
	Status        JobStatus
	ArtifactReady bool
}

// JobRecord is the full persisted view of a job used for status and download.
type JobRecord struct {
	ReportJob
	Error            string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ArtifactFilename string
	ArtifactMime     string
	ArtifactSize     int64
	ArtifactVersion  int
}

// DownloadReady returns true if the job has a stored artifact.
func (r *JobRecord) DownloadReady() bool {
	return r.Status == JobStatusCompleted && r.ArtifactSize > 0
}

// StoredFilename returns the persisted artifact name, or the default name
// for the job kind when none was stored.
func (r *JobRecord) StoredFilename() string {
	if r.ArtifactFilename != "" {
		return r.ArtifactFilename
	}
	return r.ReportJob.ArtifactFilename()
}

// DownloadFilename returns the client-facing file name for the artifact.
// Names are versioned when a version number is present. Location-only jobs
// are named after their location ID.
func (r *JobRecord) DownloadFilename() string {
	ext := "pdf"
	base := "audit-report"
	if !r.DeficiencyOnly {
		ext = "zip"
	} else {
		base = "deficiency-list"
	}
	if r.ArtifactVersion > 0 {
		target := r.Address
		if target == "" {
			target = r.LocationID
		}
		if slug := Slugify(target); slug != "" {
			return fmt.Sprintf("%s-%s-v%d.%s", base, slug, r.ArtifactVersion, ext)
		}
		return fmt.Sprintf("%s-v%d.%s", base, r.ArtifactVersion, ext)
	}
	return fmt.Sprintf("audit-report-%s.%s", r.JobID, ext)
}

// Slugify lowercases s and collapses every run of non-alphanumerics to "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
