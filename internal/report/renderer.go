// Package report turns an assembled report tree into a downloadable artifact.
//
// The Renderer emits LaTeX source into a per-job TempDir and compiles it
// with the external compiler. For full reports the Packager zips the PDF
// with the devices' photographs, and the DownloadPreparer rebuilds that
// archive on demand from the persisted PDF. External tools run through the
// Subprocess interface.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

// LogoFile is the asset the cover page includes when present.
const LogoFile = "logo.png"

// Renderer writes and compiles the report document.
type Renderer struct {
	Compiler *Compiler

	// AssetsDir holds images and style files copied into each job directory.
	AssetsDir string

	// TempParent is where job directories are created; os.TempDir when empty.
	TempParent string

	Now func() time.Time

	logger *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(compiler *Compiler, assetsDir string, logger *slog.Logger) *Renderer {
	return &Renderer{
		Compiler:  compiler,
		AssetsDir: assetsDir,
		Now:       time.Now,
		logger:    logger,
	}
}

// Render produces the PDF for job. The working directory is removed on
// every return path.
func (r *Renderer) Render(ctx context.Context, job domain.ReportJob, data *domain.ReportData, profile *domain.LocationProfile) ([]byte, error) {
	const op = "report.Render"

	dir, err := NewTempDir(r.TempParent, "report-"+job.JobID.String()+"-*")
	if err != nil {
		return nil, domain.Wrap(err, domain.ERENDER, op, "create working directory")
	}
	defer dir.Close()

	hasLogo, err := r.copyAssets(dir.Path())
	if err != nil {
		return nil, domain.Wrap(err, domain.ERENDER, op, "copy report assets")
	}

	var src bytes.Buffer
	err = WriteLaTeX(&src, Document{
		Job:         job,
		Data:        data,
		Profile:     profile,
		GeneratedAt: r.Now(),
		HasLogo:     hasLogo,
	})
	if err != nil {
		return nil, err
	}

	texName := job.Kind() + ".tex"
	if err := os.WriteFile(dir.Join(texName), src.Bytes(), 0o644); err != nil {
		return nil, domain.Wrap(err, domain.ERENDER, op, fmt.Sprintf("write %s", texName))
	}

	r.logger.Info("compiling report",
		"job_id", job.JobID,
		"file", texName,
		"source_bytes", src.Len(),
		"devices", len(data.Devices()),
	)

	pdf, err := r.Compiler.Compile(ctx, dir.Path(), texName)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// copyAssets copies the regular files at the top of AssetsDir into dir and
// reports whether the logo is among them. A missing AssetsDir is not an error.
func (r *Renderer) copyAssets(dir string) (bool, error) {
	if r.AssetsDir == "" {
		return false, nil
	}
	entries, err := os.ReadDir(r.AssetsDir)
	if os.IsNotExist(err) {
		r.logger.Debug("report assets directory missing", "path", r.AssetsDir)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	hasLogo := false
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := copyFile(filepath.Join(r.AssetsDir, e.Name()), filepath.Join(dir, e.Name())); err != nil {
			return false, err
		}
		if e.Name() == LogoFile {
			hasLogo = true
		}
	}
	return hasLogo, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
