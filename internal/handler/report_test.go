package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/report"
	"github.com/DukeRupert/liftaudit/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	records   map[uuid.UUID]domain.JobRecord
	artifacts map[uuid.UUID]domain.Artifact
}

func (f *fakeJobs) GetJob(ctx context.Context, id uuid.UUID) (domain.JobRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return domain.JobRecord{}, domain.NotFound("GetJob", "report job", id.String())
	}
	return rec, nil
}

func (f *fakeJobs) GetArtifact(ctx context.Context, id uuid.UUID) (domain.Artifact, error) {
	a, ok := f.artifacts[id]
	if !ok {
		return domain.Artifact{}, domain.Conflict("GetArtifact", "report artifact is not ready")
	}
	return a, nil
}

type fakeSubmitter struct {
	got    domain.ReportJob
	force  bool
	calls  int
	result worker.SubmitResult
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, job domain.ReportJob, force bool) (worker.SubmitResult, error) {
	f.calls++
	f.got, f.force = job, force
	return f.result, f.err
}

type fixture struct {
	handler   *ReportHandler
	mux       *http.ServeMux
	jobs      *fakeJobs
	submitter *fakeSubmitter
	tempDir   string
}

func newFixture(t *testing.T, preparer DownloadPreparer) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      &fakeJobs{records: map[uuid.UUID]domain.JobRecord{}, artifacts: map[uuid.UUID]domain.Artifact{}},
		submitter: &fakeSubmitter{result: worker.SubmitResult{JobID: uuid.New(), Status: domain.JobStatusQueued}},
		tempDir:   t.TempDir(),
	}
	if preparer == nil {
		p := report.NewDownloadPreparer(nil, nil, testLogger())
		p.TempParent = f.tempDir
		preparer = p
	}
	h, err := NewReportHandler(f.jobs, f.submitter, preparer, "/api/", testLogger())
	require.NoError(t, err)
	f.handler = h
	f.mux = http.NewServeMux()
	h.RegisterRoutes(f.mux)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func completed(deficiencyOnly bool) domain.JobRecord {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	rec := domain.JobRecord{
		ReportJob: domain.ReportJob{
			JobID:          uuid.New(),
			Address:        "100 Main St",
			DeficiencyOnly: deficiencyOnly,
			IncludeAll:     true,
			Status:         domain.JobStatusCompleted,
			CreatedAt:      started.Add(-time.Minute),
		},
		StartedAt:       &started,
		CompletedAt:     &done,
		ArtifactSize:    8,
		ArtifactVersion: 3,
	}
	rec.ArtifactFilename = rec.ReportJob.ArtifactFilename()
	return rec
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, nil)
	auditID := uuid.New()

	rec := f.do(http.MethodPost, "/api/reports", `{
		"address": "100 Main St",
		"include_all": false,
		"audit_ids": ["`+auditID.String()+`"],
		"notes": "Pit flooded",
		"cover": {"building_owner": "ACME LLC"},
		"force": true
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, f.submitter.result.JobID, resp.JobID)
	assert.Equal(t, "queued", resp.Status)
	assert.Empty(t, resp.DownloadURL)

	assert.True(t, f.submitter.force)
	assert.False(t, f.submitter.got.IncludeAll)
	assert.Equal(t, []uuid.UUID{auditID}, f.submitter.got.AuditIDs)
	assert.Equal(t, "ACME LLC", f.submitter.got.Cover.BuildingOwner)
}

func TestSubmit_ReusedReadyJobHasDownloadURL(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.submitter.result = worker.SubmitResult{JobID: id, Status: domain.JobStatusCompleted, DownloadReady: true, Reused: true}

	rec := f.do(http.MethodPost, "/api/reports", `{"address": "100 Main St"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "/api/reports/"+id.String()+"/download", resp.DownloadURL)
	assert.True(t, f.submitter.got.IncludeAll, "include_all defaults to true without audit ids")
}

func TestSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `{`},
		{name: "no target", body: `{"notes": "x"}`, field: "request"},
		{name: "blank address", body: `{"address": "   "}`, field: "request"},
		{name: "audits required", body: `{"address": "x", "include_all": false}`},
		{name: "bad audit id", body: `{"address": "x", "include_all": false, "audit_ids": ["nope"]}`, field: "audit_ids/0"},
		{name: "unknown field", body: `{"address": "x", "format": "docx"}`},
		{name: "wrong type", body: `{"address": "x", "deficiency_only": "yes"}`, field: "deficiency_only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodPost, "/api/reports", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, f.submitter.calls)
			body := decodeError(t, rec)
			assert.Equal(t, domain.EINVALID, body.Error.Code)
			if tt.field != "" {
				assert.Contains(t, body.Error.Fields, tt.field)
			}
		})
	}
}

func TestSubmit_StoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.err = domain.Internal(errors.New("db down"), "InsertJob", "failed to insert report job")

	rec := f.do(http.MethodPost, "/api/reports", `{"address": "x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	ready := completed(false)
	f.jobs.records[ready.JobID] = ready

	rec := f.do(http.MethodGet, "/api/reports/"+ready.JobID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "completed", resp.Status)
	assert.True(t, resp.DownloadReady)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.StartedAt)
	assert.Equal(t, "2024-05-01T12:01:30Z", resp.CompletedAt)
	assert.Equal(t, "audit_report.pdf", resp.ArtifactFilename)
	assert.Equal(t, 3, resp.Version)
	assert.Equal(t, "/api/reports/"+ready.JobID.String()+"/download", resp.DownloadURL)
}

func TestStatus_FailedJob(t *testing.T) {
	f := newFixture(t, nil)
	failed := domain.JobRecord{
		ReportJob: domain.ReportJob{JobID: uuid.New(), Address: "x", Status: domain.JobStatusFailed, CreatedAt: time.Now()},
		Error:     "jobs.Assemble: no audits found for x: no audit data available",
	}
	f.jobs.records[failed.JobID] = failed

	rec := f.do(http.MethodGet, "/api/reports/"+failed.JobID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "failed", resp.Status)
	assert.Contains(t, resp.Error, "no audits found")
	assert.False(t, resp.DownloadReady)
	assert.Empty(t, resp.DownloadURL)
	assert.Empty(t, resp.StartedAt)
}

func TestStatus_Errors(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/reports/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/reports/"+uuid.NewString(), "").Code)
}

func TestDownload_DeficiencyList(t *testing.T) {
	f := newFixture(t, nil)
	job := completed(true)
	f.jobs.records[job.JobID] = job
	f.jobs.artifacts[job.JobID] = domain.Artifact{Filename: "deficiency_list.pdf", Mime: domain.MimePDF, Bytes: []byte("%PDF-def")}

	rec := f.do(http.MethodGet, "/api/reports/"+job.JobID.String()+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.MimePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="deficiency-list-100-main-st-v3.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-def", rec.Body.String())

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "download work dir removed after streaming")
}

type stubPreparer struct {
	path string
}

func (s *stubPreparer) Prepare(ctx context.Context, rec domain.JobRecord, pdf []byte) (*report.DownloadArtifact, error) {
	return &report.DownloadArtifact{Path: s.path, Filename: rec.DownloadFilename(), Mime: domain.MimeZIP}, nil
}

func TestDownload_FullReport(t *testing.T) {
	zip := filepath.Join(t.TempDir(), "report.zip")
	require.NoError(t, os.WriteFile(zip, []byte("PK-archive"), 0o644))

	f := newFixture(t, &stubPreparer{path: zip})
	job := completed(false)
	f.jobs.records[job.JobID] = job
	f.jobs.artifacts[job.JobID] = domain.Artifact{Filename: "audit_report.pdf", Mime: domain.MimePDF, Bytes: []byte("%PDF")}

	rec := f.do(http.MethodGet, "/api/reports/"+job.JobID.String()+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MimeZIP, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-report-100-main-st-v3.zip")
	assert.Equal(t, "PK-archive", rec.Body.String())
}

func TestDownload_NotReady(t *testing.T) {
	f := newFixture(t, nil)
	job := completed(false)
	job.Status = domain.JobStatusProcessing
	job.ArtifactSize = 0
	f.jobs.records[job.JobID] = job

	rec := f.do(http.MethodGet, "/api/reports/"+job.JobID.String()+"/download", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Message, "processing")
}

type pinger struct{ err error }

func (p pinger) PingContext(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(pinger{}, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Health(pinger{err: errors.New("down")}, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
