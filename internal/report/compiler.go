package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// DefaultLaTeXCommand is the compiler used when none is configured.
	DefaultLaTeXCommand = "pdflatex"

	// LaTeXPasses is how many times the compiler runs so the table of
	// contents, cross-references and chart axes settle.
	LaTeXPasses = 3
)

// Compiler turns a .tex file into PDF bytes by running an external compiler
// a fixed number of passes in the file's directory.
type Compiler struct {
	Command string
	Passes  int
	Runner  Subprocess

	// Verify returns the page count of a produced PDF.
	Verify func(pdf []byte) (int, error)

	logger *slog.Logger
}

// NewCompiler creates a Compiler. An empty command selects pdflatex.
func NewCompiler(command string, runner Subprocess, logger *slog.Logger) *Compiler {
	if command == "" {
		command = DefaultLaTeXCommand
	}
	if runner == nil {
		runner = ExecSubprocess{}
	}
	return &Compiler{
		Command: command,
		Passes:  LaTeXPasses,
		Runner:  runner,
		Verify:  PageCount,
		logger:  logger,
	}
}

// Compile runs every pass over texFile in dir and returns the resulting PDF.
// Any non-zero exit fails with the pass number; a missing or unreadable
// PDF after the last pass is also a failure.
func (c *Compiler) Compile(ctx context.Context, dir, texFile string) ([]byte, error) {
	const op = "report.Compile"

	args := []string{"-interaction=nonstopmode", "-halt-on-error", "-file-line-error", texFile}

	for pass := 1; pass <= c.Passes; pass++ {
		start := time.Now()
		status, err := c.Runner.Run(ctx, c.Command, args, dir)
		metrics.LatexPass(pass, time.Since(start))
		if err != nil {
			return nil, domain.Wrap(err, domain.ERENDER, op,
				fmt.Sprintf("%s pass %d of %d could not run", c.Command, pass, c.Passes))
		}
		if !status.Success() {
			c.logger.Error("LaTeX pass failed",
				"pass", pass,
				"exit_code", status.Code,
				"output", lastLines(string(status.Output), 12),
			)
			return nil, domain.Errorf(domain.ERENDER, op,
				"%s pass %d of %d failed for %s with exit code %d",
				c.Command, pass, c.Passes, texFile, status.Code)
		}
		c.logger.Debug("LaTeX pass finished", "pass", pass, "duration", time.Since(start))
	}

	pdfPath := filepath.Join(dir, strings.TrimSuffix(texFile, filepath.Ext(texFile))+".pdf")
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, domain.Wrap(err, domain.ERENDER, op,
			fmt.Sprintf("compiler produced no output %s", filepath.Base(pdfPath)))
	}
	if len(pdf) == 0 {
		return nil, domain.Errorf(domain.ERENDER, op, "compiler produced an empty %s", filepath.Base(pdfPath))
	}

	if c.Verify != nil {
		pages, err := c.Verify(pdf)
		if err != nil {
			return nil, domain.Wrap(err, domain.ERENDER, op, "compiled PDF is unreadable")
		}
		if pages < 1 {
			return nil, domain.Errorf(domain.ERENDER, op, "compiled PDF has no pages")
		}
		c.logger.Debug("PDF compiled", "pages", pages, "bytes", len(pdf))
	}

	return pdf, nil
}

// PageCount parses pdf and returns its page count.
func PageCount(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(pdf), conf)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
