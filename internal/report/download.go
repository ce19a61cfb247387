package report

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/google/uuid"
)

// ReportLoader loads the report tree for an address or location.
type ReportLoader interface {
	LoadReport(ctx context.Context, address, locationID string, includeAll bool, auditIDs []uuid.UUID) (*domain.ReportData, error)
}

// DownloadArtifact is a prepared download. The caller streams Path and must
// call Close, which removes the working directory.
type DownloadArtifact struct {
	Path     string
	Filename string
	Mime     string

	workDir *TempDir
	once    sync.Once
	err     error
}

// Size returns the artifact size in bytes.
func (a *DownloadArtifact) Size() (int64, error) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close removes the working directory. It is safe to call more than once.
func (a *DownloadArtifact) Close() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.err = a.workDir.Close()
	})
	return a.err
}

// DownloadPreparer rebuilds a job's downloadable artifact from its persisted
// PDF. Deficiency lists download as the PDF itself; full reports are
// re-packaged with freshly exported photos on every request.
type DownloadPreparer struct {
	Loader     ReportLoader
	Packager   *Packager
	TempParent string
	logger     *slog.Logger
}

// NewDownloadPreparer creates a DownloadPreparer.
func NewDownloadPreparer(loader ReportLoader, packager *Packager, logger *slog.Logger) *DownloadPreparer {
	return &DownloadPreparer{Loader: loader, Packager: packager, logger: logger}
}

// Prepare writes the artifact for rec into a new working directory. On any
// error the directory is already removed.
func (p *DownloadPreparer) Prepare(ctx context.Context, rec domain.JobRecord, pdf []byte) (*DownloadArtifact, error) {
	const op = "report.PrepareDownload"

	if !rec.DownloadReady() {
		return nil, domain.Conflict(op, "report artifact is not ready")
	}
	if len(pdf) == 0 {
		return nil, domain.Errorf(domain.EPACKAGE, op, "job %s has no stored report", rec.JobID)
	}

	dir, err := NewTempDir(p.TempParent, "download-"+rec.JobID.String()+"-*")
	if err != nil {
		return nil, domain.Wrap(err, domain.EPACKAGE, op, "create working directory")
	}

	art, err := p.prepare(ctx, dir, rec, pdf)
	if err != nil {
		dir.Close()
		return nil, err
	}
	metrics.Download(art.Mime)
	return art, nil
}

func (p *DownloadPreparer) prepare(ctx context.Context, dir *TempDir, rec domain.JobRecord, pdf []byte) (*DownloadArtifact, error) {
	const op = "report.PrepareDownload"

	pdfName := rec.StoredFilename()

	if rec.DeficiencyOnly {
		path := dir.Join(pdfName)
		if err := os.WriteFile(path, pdf, 0o644); err != nil {
			return nil, domain.Wrap(err, domain.EPACKAGE, op, "write report")
		}
		return &DownloadArtifact{
			Path:     path,
			Filename: rec.DownloadFilename(),
			Mime:     domain.MimePDF,
			workDir:  dir,
		}, nil
	}

	data, err := p.Loader.LoadReport(ctx, rec.Address, rec.LocationID, rec.IncludeAll, rec.AuditIDs)
	if err != nil {
		return nil, err
	}

	archive, err := p.Packager.Package(ctx, dir, pdf, pdfName, data.Devices())
	if err != nil {
		return nil, err
	}

	p.logger.Debug("download archive rebuilt",
		"job_id", rec.JobID,
		"photos", data.PhotoCount(),
	)

	return &DownloadArtifact{
		Path:     archive,
		Filename: rec.DownloadFilename(),
		Mime:     domain.MimeZIP,
		workDir:  dir,
	}, nil
}
