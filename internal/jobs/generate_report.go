// Package jobs runs the report pipeline for one claimed job: assembly,
// narrative fan-out, rendering and, for full reports, packaging.
//
// Stages run strictly in that order. Every stage returns an error carrying
// a pipeline code from the domain package; translating that error into a
// job status is left to the caller.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/DukeRupert/liftaudit/internal/narrative"
	"github.com/DukeRupert/liftaudit/internal/report"
)

// NarrativeWriter fills the narrative slots of a report tree.
type NarrativeWriter interface {
	Generate(ctx context.Context, job domain.ReportJob, data *domain.ReportData) (narrative.Outcome, error)
}

// DocumentRenderer produces the PDF bytes of a report.
type DocumentRenderer interface {
	Render(ctx context.Context, job domain.ReportJob, data *domain.ReportData, profile *domain.LocationProfile) ([]byte, error)
}

// ArchivePackager builds the distributable archive of a full report.
type ArchivePackager interface {
	Package(ctx context.Context, scratch *report.TempDir, pdf []byte, pdfName string, devices []domain.Device) (string, error)
}

// GenerateReport is the pipeline driven by the worker for every claimed job.
type GenerateReport struct {
	assembler  *Assembler
	narratives NarrativeWriter
	renderer   DocumentRenderer
	packager   ArchivePackager

	// TempParent is where packaging scratch directories are created.
	TempParent string

	logger *slog.Logger
}

// NewGenerateReport creates the pipeline. packager may be nil, in which
// case full reports are not packaged before completion.
func NewGenerateReport(
	assembler *Assembler,
	narratives NarrativeWriter,
	renderer DocumentRenderer,
	packager ArchivePackager,
	logger *slog.Logger,
) *GenerateReport {
	return &GenerateReport{
		assembler:  assembler,
		narratives: narratives,
		renderer:   renderer,
		packager:   packager,
		logger:     logger,
	}
}

// Run executes the pipeline for job and returns the artifact to persist.
func (g *GenerateReport) Run(ctx context.Context, job domain.ReportJob) (*domain.Artifact, error) {
	logger := g.logger.With(
		"job_id", job.JobID,
		"address", job.Address,
		"deficiency_only", job.DeficiencyOnly,
	)
	start := time.Now()

	asm, err := g.assembler.Assemble(ctx, job)
	if err != nil {
		return nil, err
	}
	logger.Info("report data assembled",
		"devices", asm.Data.Summary.DeviceCount,
		"deficiencies", asm.Data.Summary.DeficiencyCount,
		"profile", asm.Profile != nil,
	)

	if !job.DeficiencyOnly {
		outcome, err := g.narratives.Generate(ctx, job, asm.Data)
		if err != nil {
			return nil, err
		}
		logger.Info("narratives complete", "tasks", outcome.Tasks, "fallbacks", outcome.Fallbacks)
	}

	pdf, err := g.renderer.Render(ctx, job, asm.Data, asm.Profile)
	if err != nil {
		return nil, err
	}

	if !job.DeficiencyOnly && g.packager != nil {
		if err := g.verifyPackage(ctx, job, pdf, asm.Data); err != nil {
			return nil, err
		}
	}

	artifact := &domain.Artifact{
		Filename: job.ArtifactFilename(),
		Mime:     domain.MimePDF,
		Bytes:    pdf,
	}
	metrics.Artifact(artifact.Mime, artifact.Size())
	logger.Info("report generated",
		"filename", artifact.Filename,
		"size_bytes", artifact.Size(),
		"duration", time.Since(start),
	)
	return artifact, nil
}

// verifyPackage builds the archive once so that photo export and zip
// failures fail the job. The archive is discarded; downloads rebuild it.
func (g *GenerateReport) verifyPackage(ctx context.Context, job domain.ReportJob, pdf []byte, data *domain.ReportData) error {
	scratch, err := report.NewTempDir(g.TempParent, "package-"+job.JobID.String()+"-*")
	if err != nil {
		return domain.Wrap(err, domain.EPACKAGE, "jobs.verifyPackage", "create scratch directory")
	}
	defer scratch.Close()

	_, err = g.packager.Package(ctx, scratch, pdf, job.ArtifactFilename(), data.Devices())
	return err
}
