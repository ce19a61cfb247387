// Package narrative generates the prose of a full report: the six fixed
// report sections and one assessment per device.
//
// Every narrative is an independent task run against an
// ai.NarrativeGenerator. Tasks run concurrently and are joined before any
// result is read. A failed section fails the whole report; a failed device
// narrative is replaced by a deterministic Fallback.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DukeRupert/liftaudit/internal/ai"
	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/DukeRupert/liftaudit/internal/metrics"
	"github.com/DukeRupert/liftaudit/internal/report"
	"golang.org/x/sync/errgroup"
)

// ErrNothingToGenerate is returned when a report yields no tasks.
var ErrNothingToGenerate = errors.New("no narrative tasks to run")

// TaskKind distinguishes report-level sections from device narratives.
type TaskKind int

const (
	KindSection TaskKind = iota
	KindDevice
)

func (k TaskKind) String() string {
	if k == KindDevice {
		return "device"
	}
	return "section"
}

// Task is one prompt/response exchange.
type Task struct {
	Kind         TaskKind
	Section      domain.NarrativeSection // KindSection
	Device       int                     // KindDevice: index into the device list
	SystemPrompt string
	Prompt       string
}

// result is the tagged outcome of a task: sectionResult or deviceResult.
type result interface {
	kind() TaskKind
}

type sectionResult struct {
	Section domain.NarrativeSection
	Text    string
	Err     error
}

func (sectionResult) kind() TaskKind { return KindSection }

type deviceResult struct {
	Device int
	Text   string
	Err    error
}

func (deviceResult) kind() TaskKind { return KindDevice }

// Outcome summarizes one fan-out.
type Outcome struct {
	Tasks     int
	Fallbacks int
}

// Coordinator runs the narrative tasks of a report.
type Coordinator struct {
	generator ai.NarrativeGenerator

	// maxConcurrency bounds running tasks; zero runs every task at once.
	maxConcurrency int

	logger *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(generator ai.NarrativeGenerator, maxConcurrency int, logger *slog.Logger) *Coordinator {
	return &Coordinator{generator: generator, maxConcurrency: maxConcurrency, logger: logger}
}

// BuildTasks returns the six section tasks followed by one task per device.
func BuildTasks(job domain.ReportJob, data *domain.ReportData) ([]Task, error) {
	contextJSON, err := ReportContext(job, data)
	if err != nil {
		return nil, err
	}

	devices := data.Devices()
	system := SystemPrompt(devices)
	tasks := make([]Task, 0, domain.NarrativeSectionCount+len(devices))
	for _, s := range domain.NarrativeSections() {
		tasks = append(tasks, Task{
			Kind:         KindSection,
			Section:      s,
			SystemPrompt: system,
			Prompt:       SectionPrompt(s, contextJSON),
		})
	}
	for i := range devices {
		tasks = append(tasks, Task{
			Kind:         KindDevice,
			Device:       i,
			SystemPrompt: DeviceSystemPrompt(&devices[i]),
			Prompt:       DevicePrompt(&devices[i]),
		})
	}
	return tasks, nil
}

// Generate fills data's section narratives and every device narrative.
// data is only read while tasks run and is written after all have finished.
func (c *Coordinator) Generate(ctx context.Context, job domain.ReportJob, data *domain.ReportData) (Outcome, error) {
	const op = "narrative.Generate"

	if data.IsEmpty() {
		return Outcome{}, domain.Wrap(domain.ErrNoData, domain.EDATALOAD, op, "no audits for "+job.Address)
	}

	tasks, err := BuildTasks(job, data)
	if err != nil {
		return Outcome{}, domain.Wrap(err, domain.ENARRATIVE, op, "build prompts")
	}
	if len(tasks) == 0 {
		return Outcome{}, domain.Wrap(ErrNothingToGenerate, domain.ENARRATIVE, op, "")
	}

	results := c.run(ctx, tasks)

	if err := c.reduceSections(data, results); err != nil {
		return Outcome{Tasks: len(tasks)}, domain.Wrap(err, domain.ENARRATIVE, op, "")
	}
	fallbacks := c.reduceDevices(job, data, results)

	c.logger.Info("narratives generated",
		"job_id", job.JobID,
		"tasks", len(tasks),
		"fallbacks", fallbacks,
	)
	return Outcome{Tasks: len(tasks), Fallbacks: fallbacks}, nil
}

// run executes every task and returns once all have finished. When the
// group is at its limit a task runs on the calling goroutine instead.
func (c *Coordinator) run(ctx context.Context, tasks []Task) []result {
	results := make([]result, len(tasks))

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for i := range tasks {
		i := i
		fn := func() error {
			results[i] = c.execute(ctx, tasks[i])
			return nil
		}
		if !g.TryGo(fn) {
			_ = fn()
		}
	}
	_ = g.Wait()

	return results
}

func (c *Coordinator) execute(ctx context.Context, t Task) result {
	text, err := c.generator.Generate(ctx, t.SystemPrompt, t.Prompt)
	if err == nil {
		text = strings.TrimSpace(report.SanitizeASCII(text))
		if text == "" {
			err = ai.EAIEmptyResponse
		}
	}
	metrics.NarrativeTask(t.Kind.String(), err == nil)

	if t.Kind == KindDevice {
		return deviceResult{Device: t.Device, Text: text, Err: err}
	}
	return sectionResult{Section: t.Section, Text: text, Err: err}
}

// reduceSections stores every section's text. The first failure in
// document order is returned.
func (c *Coordinator) reduceSections(data *domain.ReportData, results []result) error {
	var failed error
	for _, r := range results {
		sr, ok := r.(sectionResult)
		if !ok {
			continue
		}
		if sr.Err != nil {
			c.logger.Error("section narrative failed", "section", sr.Section.String(), "error", sr.Err)
			if failed == nil {
				failed = fmt.Errorf("generate %s: %w", sr.Section.Title(), sr.Err)
			}
			continue
		}
		data.Summary.Narratives.Set(sr.Section, sr.Text)
	}
	return failed
}

// reduceDevices stores every device narrative, substituting the fallback
// for failures, and returns how many fallbacks were used.
func (c *Coordinator) reduceDevices(job domain.ReportJob, data *domain.ReportData, results []result) int {
	devices := data.Summary.Devices
	fallbacks := 0
	for _, r := range results {
		dr, ok := r.(deviceResult)
		if !ok {
			continue
		}
		d := &devices[dr.Device]
		if dr.Err != nil {
			c.logger.Warn("device narrative failed, using fallback",
				"job_id", job.JobID,
				"device_id", d.Label(),
				"error", dr.Err,
			)
			metrics.NarrativeFallback()
			d.Narrative = Fallback(d)
			fallbacks++
			continue
		}
		d.Narrative = dr.Text
	}
	return fallbacks
}
