package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

// DefaultZipCommand is the archive utility used when none is configured.
const DefaultZipCommand = "zip"

// Packager builds the distributable archive of a full report.
type Packager struct {
	Command  string
	Runner   Subprocess
	Exporter *PhotoExporter
	logger   *slog.Logger
}

// NewPackager creates a Packager. An empty command selects zip.
func NewPackager(command string, runner Subprocess, exporter *PhotoExporter, logger *slog.Logger) *Packager {
	if command == "" {
		command = DefaultZipCommand
	}
	if runner == nil {
		runner = ExecSubprocess{}
	}
	return &Packager{Command: command, Runner: runner, Exporter: exporter, logger: logger}
}

// Package stages pdf as pdfName next to the devices' photos inside scratch
// and zips the staging tree. It returns the archive path, which lives in
// scratch; the caller owns scratch and removes it.
func (p *Packager) Package(ctx context.Context, scratch *TempDir, pdf []byte, pdfName string, devices []domain.Device) (string, error) {
	const op = "report.Package"

	stage := scratch.Join("package")
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return "", domain.Wrap(err, domain.EPACKAGE, op, "create staging directory")
	}
	if err := os.WriteFile(filepath.Join(stage, pdfName), pdf, 0o644); err != nil {
		return "", domain.Wrap(err, domain.EPACKAGE, op, fmt.Sprintf("stage %s", pdfName))
	}

	photos := 0
	if p.Exporter != nil {
		n, err := p.Exporter.Export(ctx, stage, devices)
		if err != nil {
			return "", err
		}
		photos = n
	}

	archive := scratch.Join("report.zip")
	status, err := p.Runner.Run(ctx, p.Command, []string{"-r", "-q", "-X", archive, "."}, stage)
	if err != nil {
		return "", domain.Wrap(err, domain.EPACKAGE, op, fmt.Sprintf("%s could not run", p.Command))
	}
	if !status.Success() {
		p.logger.Error("zip failed", "exit_code", status.Code, "output", lastLines(string(status.Output), 12))
		return "", domain.Errorf(domain.EPACKAGE, op, "%s failed with exit code %d", p.Command, status.Code)
	}

	info, err := os.Stat(archive)
	if err != nil || info.Size() == 0 {
		return "", domain.Errorf(domain.EPACKAGE, op, "%s produced no archive", p.Command)
	}

	p.logger.Debug("archive packaged", "photos", photos, "bytes", info.Size())
	return archive, nil
}
