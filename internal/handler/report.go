// Package handler contains the HTTP handlers of the report API.
//
// This file implements report job submission, status and download.
package handler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/report"
	"github.com/DukeRupert/liftaudit/internal/worker"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxRequestBytes bounds a submission body.
const maxRequestBytes = 1 << 20

//go:embed schemas/report_request.json
var reportRequestSchema []byte

// JobReader is the read side of the job store.
type JobReader interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (domain.JobRecord, error)
	GetArtifact(ctx context.Context, jobID uuid.UUID) (domain.Artifact, error)
}

// JobSubmitter queues report jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, job domain.ReportJob, force bool) (worker.SubmitResult, error)
}

// DownloadPreparer turns persisted PDF bytes into a streamable artifact.
type DownloadPreparer interface {
	Prepare(ctx context.Context, rec domain.JobRecord, pdf []byte) (*report.DownloadArtifact, error)
}

// ReportHandler handles HTTP requests related to report jobs.
type ReportHandler struct {
	jobs      JobReader
	submitter JobSubmitter
	preparer  DownloadPreparer
	prefix    string
	schema    *jsonschema.Schema
	logger    *slog.Logger
}

// NewReportHandler creates a new ReportHandler. prefix is the path the
// routes are mounted under, such as "/api".
func NewReportHandler(
	jobs JobReader,
	submitter JobSubmitter,
	preparer DownloadPreparer,
	prefix string,
	logger *slog.Logger,
) (*ReportHandler, error) {
	schema, err := compileSchema("report_request.json", reportRequestSchema)
	if err != nil {
		return nil, err
	}
	return &ReportHandler{
		jobs:      jobs,
		submitter: submitter,
		preparer:  preparer,
		prefix:    strings.TrimRight(prefix, "/"),
		schema:    schema,
		logger:    logger,
	}, nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return schema, nil
}

// RegisterRoutes mounts the report routes on mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+h.prefix+"/reports", h.Submit)
	mux.HandleFunc("GET "+h.prefix+"/reports/{id}", h.Status)
	mux.HandleFunc("GET "+h.prefix+"/reports/{id}/download", h.Download)
}

// =============================================================================
// Submit
// =============================================================================

// ReportRequest is the body of a submission.
type ReportRequest struct {
	Address         string                `json:"address"`
	LocationID      string                `json:"location_id"`
	DeficiencyOnly  bool                  `json:"deficiency_only"`
	IncludeAll      *bool                 `json:"include_all"`
	AuditIDs        []uuid.UUID           `json:"audit_ids"`
	Notes           string                `json:"notes"`
	Recommendations string                `json:"recommendations"`
	Cover           domain.CoverOverrides `json:"cover"`
	Force           bool                  `json:"force"`
}

// Job converts the request into a job. include_all defaults to true
// unless audits are named.
func (req ReportRequest) Job() domain.ReportJob {
	includeAll := len(req.AuditIDs) == 0
	if req.IncludeAll != nil {
		includeAll = *req.IncludeAll
	}
	return domain.ReportJob{
		Address:         req.Address,
		LocationID:      req.LocationID,
		DeficiencyOnly:  req.DeficiencyOnly,
		IncludeAll:      includeAll,
		AuditIDs:        req.AuditIDs,
		Notes:           req.Notes,
		Recommendations: req.Recommendations,
		Cover:           req.Cover,
	}
}

// SubmitResponse is returned for every accepted submission.
type SubmitResponse struct {
	JobID       uuid.UUID `json:"job_id"`
	Status      string    `json:"status"`
	DownloadURL string    `json:"download_url,omitempty"`
}

// Submit queues a report job.
// POST {prefix}/reports
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.Submit", "Request body is too large or unreadable"))
		return
	}

	req, err := h.decodeRequest(body)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.submitter.Submit(r.Context(), req.Job(), req.Force)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := SubmitResponse{JobID: res.JobID, Status: res.Status.String()}
	if res.DownloadReady {
		resp.DownloadURL = h.downloadURL(res.JobID)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *ReportHandler) decodeRequest(body []byte) (ReportRequest, error) {
	const op = "handler.decodeRequest"

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ReportRequest{}, domain.Invalid(op, "Request body must be valid JSON")
	}
	if err := h.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return ReportRequest{}, schemaFieldErrors(op, ve)
		}
		return ReportRequest{}, domain.Invalid(op, "Request does not match the report request schema")
	}

	var req ReportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ReportRequest{}, domain.Invalid(op, "Request body could not be decoded")
	}
	return req, nil
}

// schemaFieldErrors flattens a schema failure into one message per field.
func schemaFieldErrors(op string, ve *jsonschema.ValidationError) *domain.ValidationError {
	out := &domain.ValidationError{Op: op, Fields: map[string]string{}}

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "request"
			}
			if _, seen := out.Fields[field]; !seen {
				out.Fields[field] = e.Message
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

// =============================================================================
// Status
// =============================================================================

// StatusResponse is the status view of one job.
type StatusResponse struct {
	JobID            uuid.UUID `json:"job_id"`
	Status           string    `json:"status"`
	Address          string    `json:"address"`
	DeficiencyOnly   bool      `json:"deficiency_only"`
	CreatedAt        string    `json:"created_at"`
	StartedAt        string    `json:"started_at,omitempty"`
	CompletedAt      string    `json:"completed_at,omitempty"`
	Error            string    `json:"error,omitempty"`
	DownloadReady    bool      `json:"download_ready"`
	ArtifactSize     int64     `json:"artifact_size,omitempty"`
	ArtifactFilename string    `json:"artifact_filename,omitempty"`
	Version          int       `json:"version,omitempty"`
	DownloadURL      string    `json:"download_url,omitempty"`
}

// Status returns the status view of a job.
// GET {prefix}/reports/{id}
func (h *ReportHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	rec, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.statusView(rec))
}

func (h *ReportHandler) statusView(rec domain.JobRecord) StatusResponse {
	v := StatusResponse{
		JobID:          rec.JobID,
		Status:         rec.Status.String(),
		Address:        rec.Address,
		DeficiencyOnly: rec.DeficiencyOnly,
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:      formatTime(rec.StartedAt),
		CompletedAt:    formatTime(rec.CompletedAt),
		Error:          rec.Error,
		DownloadReady:  rec.DownloadReady(),
		Version:        rec.ArtifactVersion,
	}
	if v.DownloadReady {
		v.ArtifactSize = rec.ArtifactSize
		v.ArtifactFilename = rec.StoredFilename()
		v.DownloadURL = h.downloadURL(rec.JobID)
	}
	return v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// Download
// =============================================================================

// Download streams the artifact of a completed job. Full reports are
// packaged on every request.
// GET {prefix}/reports/{id}/download
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	const op = "handler.Download"

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	rec, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !rec.DownloadReady() {
		ErrorResponse(w, r, h.logger, domain.Conflict(op, fmt.Sprintf("report is %s, not ready for download", rec.Status)))
		return
	}

	stored, err := h.jobs.GetArtifact(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	artifact, err := h.preparer.Prepare(r.Context(), rec, stored.Bytes)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer artifact.Close()

	f, err := os.Open(artifact.Path)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to open prepared artifact"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to stat prepared artifact"))
		return
	}

	w.Header().Set("Content-Type", artifact.Mime)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("failed to stream report", "error", err, "job_id", id)
		return
	}

	h.logger.Info("Report downloaded",
		"job_id", id,
		"filename", artifact.Filename,
		"mime", artifact.Mime,
		"size_bytes", info.Size(),
	)
}

func (h *ReportHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.jobID", "Invalid report job ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *ReportHandler) downloadURL(id uuid.UUID) string {
	return h.prefix + "/reports/" + id.String() + "/download"
}

// =============================================================================
// Health
// =============================================================================

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers liveness checks. When db is set it must answer a ping.
// GET /health
func Health(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

