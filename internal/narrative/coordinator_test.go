package narrative

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/DukeRupert/liftaudit/internal/ai"
	"github.com/DukeRupert/liftaudit/internal/ai/mock"
	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func threeDevices() *domain.ReportData {
	audit := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	return domain.NewReportData("100 Main St", "", []domain.Device{
		{AuditID: audit, DeviceID: "Car 1", DeviceType: "Traction", Deficiencies: []domain.Deficiency{
			{ConditionCode: "DIRTY", Condition: "Dirty", Equipment: "Pit"},
		}},
		{AuditID: audit, DeviceID: "Car 2", DeviceType: "Hydraulic"},
		{AuditID: audit, DeviceID: "ESC A", DeviceType: "Escalator", Deficiencies: []domain.Deficiency{
			{ConditionCode: "WORN", Condition: "Worn", Equipment: "Handrail"},
			{ConditionCode: "WORN", Condition: "Worn", Equipment: "Step", Resolved: true},
		}},
	})
}

func testJob() domain.ReportJob {
	return domain.ReportJob{JobID: uuid.New(), Address: "100 Main St", IncludeAll: true}
}

func isDevicePrompt(prompt, device string) bool {
	return strings.HasPrefix(prompt, "Write a one to two paragraph assessment of device "+device+" ")
}

func TestBuildTasks(t *testing.T) {
	tasks, err := BuildTasks(testJob(), threeDevices())
	require.NoError(t, err)
	require.Len(t, tasks, domain.NarrativeSectionCount+3)

	for i, s := range domain.NarrativeSections() {
		assert.Equal(t, KindSection, tasks[i].Kind)
		assert.Equal(t, s, tasks[i].Section)
		assert.Contains(t, tasks[i].Prompt, `"address": "100 Main St"`)
		assert.Contains(t, tasks[i].SystemPrompt, mixedFocus)
	}

	dev := tasks[domain.NarrativeSectionCount:]
	assert.Equal(t, 2, dev[2].Device)
	assert.True(t, isDevicePrompt(dev[0].Prompt, "Car 1"))
	assert.Contains(t, dev[0].SystemPrompt, elevatorFocus)
	assert.Contains(t, dev[2].SystemPrompt, escalatorFocus)
	assert.Contains(t, dev[2].Prompt, "Deficiencies (2, 1 open)")
	assert.Contains(t, dev[2].Prompt, "- [resolved] equipment: Step; condition: WORN (Worn)")
}

func TestCoordinator_AllSucceed(t *testing.T) {
	gen := mock.New(nil)
	gen.Respond = func(_, prompt string) (string, error) {
		return "  Narrative for “" + firstLine(prompt)[:20] + "”  ", nil
	}
	data := threeDevices()

	out, err := NewCoordinator(gen, 0, testLogger()).Generate(context.Background(), testJob(), data)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Tasks: 9}, out)
	assert.Equal(t, 9, gen.Calls())

	assert.True(t, data.Summary.Narratives.Complete())
	for _, d := range data.Devices() {
		assert.NotEmpty(t, d.Narrative)
		assert.False(t, strings.HasPrefix(d.Narrative, " "), "trimmed")
		assert.NotContains(t, d.Narrative, "“", "sanitized to ASCII")
	}
}

func TestCoordinator_DeviceFailuresUseFallback(t *testing.T) {
	gen := mock.New(nil)
	gen.Respond = func(_, prompt string) (string, error) {
		switch {
		case isDevicePrompt(prompt, "Car 1"):
			return "", ai.EAITimeout
		case isDevicePrompt(prompt, "ESC A"):
			return "   ", nil
		}
		return "Generated text.", nil
	}
	data := threeDevices()

	out, err := NewCoordinator(gen, 2, testLogger()).Generate(context.Background(), testJob(), data)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Fallbacks)

	devices := data.Devices()
	assert.Equal(t, Fallback(&devices[0]), devices[0].Narrative)
	assert.Equal(t, "Generated text.", devices[1].Narrative)
	assert.Equal(t, Fallback(&devices[2]), devices[2].Narrative)
	assert.True(t, data.Summary.Narratives.Complete())
}

func TestCoordinator_SectionFailureFailsReport(t *testing.T) {
	gen := mock.New(nil)
	gen.Respond = func(_, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Write the Methodology") {
			return "", ai.EAIUnavailable
		}
		return "ok", nil
	}

	_, err := NewCoordinator(gen, 0, testLogger()).Generate(context.Background(), testJob(), threeDevices())
	require.Error(t, err)
	assert.Equal(t, domain.ENARRATIVE, domain.ErrorCode(err))
	assert.True(t, errors.Is(err, ai.EAIUnavailable))
	assert.Contains(t, err.Error(), "Methodology")
	assert.Equal(t, 9, gen.Calls(), "every task runs before results are reduced")
}

func TestCoordinator_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	gen := ai.GenerateFunc(func(ctx context.Context, _, _ string) (string, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return "text", nil
	})

	out, err := NewCoordinator(gen, 1, testLogger()).Generate(context.Background(), testJob(), threeDevices())
	require.NoError(t, err)
	assert.Equal(t, 9, out.Tasks)
	// one goroutine in the group plus the caller running overflow inline
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCoordinator_EmptyData(t *testing.T) {
	gen := mock.New(nil)
	_, err := NewCoordinator(gen, 0, testLogger()).Generate(context.Background(), testJob(), domain.NewReportData("x", "", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoData))
	assert.Zero(t, gen.Calls())
}

func TestFallback(t *testing.T) {
	data := threeDevices()
	devices := data.Devices()

	assert.Equal(t,
		"No deficiencies were recorded for Car 2 during this audit. The elevator should remain on its regular maintenance schedule.",
		Fallback(&devices[1]))
	assert.Equal(t,
		"ESC A has 2 recorded deficiencies (1 open), involving the following conditions: WORN. "+
			"The open items should be corrected by the elevator contractor and verified at the next inspection of this escalator.",
		Fallback(&devices[2]))
	assert.Contains(t, Fallback(&devices[0]), "1 recorded deficiency (1 open)")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
