package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrativeSections(t *testing.T) {
	sections := NarrativeSections()
	require.Len(t, sections, 6)
	assert.Equal(t, NarrativeSectionCount, len(sections))

	want := []string{
		"Executive Summary",
		"Key Findings",
		"Methodology",
		"Maintenance Performance",
		"Recommendations",
		"Conclusion",
	}
	for i, s := range sections {
		assert.True(t, s.IsValid())
		assert.Equal(t, want[i], s.Title())
	}
	assert.Equal(t, "maintenance_performance", SectionMaintenancePerformance.String())
	assert.Equal(t, "unknown", NarrativeSection(42).String())
	assert.False(t, NarrativeSection(-1).IsValid())
}

func TestSectionNarratives_Complete(t *testing.T) {
	var n SectionNarratives
	assert.False(t, n.Complete())

	for _, s := range NarrativeSections() {
		n.Set(s, "text for "+s.String())
	}
	assert.True(t, n.Complete())
	assert.Equal(t, "text for conclusion", n.Get(SectionConclusion))

	n.Set(SectionMethodology, "   ")
	assert.False(t, n.Complete())

	n.Set(NarrativeSection(99), "ignored")
	assert.Equal(t, "", n.Get(NarrativeSection(99)))
}

func TestNewReportData_Aggregates(t *testing.T) {
	a1, a2 := uuid.New(), uuid.New()
	early := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

	devices := []Device{
		{
			AuditID:       a1,
			DeviceID:      "1P1234",
			SubmittedOn:   late,
			BuildingOwner: "ACME HOLDINGS LLC",
			Deficiencies: []Deficiency{
				{ConditionCode: "dm", Condition: "Damaged"},
				{ConditionCode: "DM", Condition: "Damaged", Resolved: true},
				{ConditionCode: "IN", Condition: "Inoperative"},
			},
		},
		{
			AuditID:     a2,
			DeviceID:    "1P5678",
			SubmittedOn: early,
			Deficiencies: []Deficiency{
				{Condition: "Loose"},
			},
		},
	}

	data := NewReportData("100 MAIN ST", "loc-1", devices)
	s := data.Summary

	assert.Equal(t, 2, s.AuditCount)
	assert.Equal(t, 2, s.DeviceCount)
	assert.Equal(t, 4, s.DeficiencyCount)
	assert.Equal(t, 3, s.OpenDeficiencyCount)
	assert.Equal(t, early, s.FirstAudit)
	assert.Equal(t, late, s.LastAudit)
	assert.Equal(t, "ACME HOLDINGS LLC", s.BuildingOwner)
	assert.Equal(t, []ConditionCount{
		{Code: "DM", Count: 2},
		{Code: "IN", Count: 1},
		{Code: "Loose", Count: 1},
	}, s.ConditionTally)
	assert.False(t, data.IsEmpty())
	assert.Equal(t, map[uuid.UUID]struct{}{a1: {}, a2: {}}, data.AuditIDs())
}

func TestReportData_IsEmpty(t *testing.T) {
	var nilData *ReportData
	assert.True(t, nilData.IsEmpty())
	assert.True(t, NewReportData("1 Way", "", nil).IsEmpty())
}

func TestDevice_Helpers(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name      string
		device    Device
		label     string
		escalator bool
	}{
		{name: "device id", device: Device{AuditID: id, DeviceID: " 1P99 ", DeviceType: "Traction"}, label: "1P99"},
		{name: "bank name fallback", device: Device{AuditID: id, BankName: "North Bank", DeviceType: "Escalator"}, label: "North Bank", escalator: true},
		{name: "audit id fallback", device: Device{AuditID: id, DeviceType: "Moving Walk"}, label: id.String(), escalator: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.label, tt.device.Label())
			assert.Equal(t, tt.escalator, tt.device.IsEscalator())
		})
	}
}

func TestDevice_ConditionTypes(t *testing.T) {
	d := Device{Deficiencies: []Deficiency{
		{ConditionCode: "IN"},
		{Condition: "Worn"},
		{ConditionCode: "in"},
		{},
	}}
	assert.Equal(t, []string{"IN", "Worn", "Unspecified"}, d.ConditionTypes())
	assert.Equal(t, 4, d.OpenDeficiencies())
}
