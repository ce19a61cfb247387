// Package domain contains core business types and interfaces.
//
// This file defines the report tree assembled for one address or location:
// a Summary of aggregate counts owning the ordered Device list, each Device
// owning its Deficiency records and a narrative slot filled during fan-out.
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Narrative Sections
// =============================================================================

// NarrativeSection identifies one of the fixed report-level prose blocks.
type NarrativeSection int

const (
	SectionExecutiveSummary NarrativeSection = iota
	SectionKeyFindings
	SectionMethodology
	SectionMaintenancePerformance
	SectionRecommendations
	SectionConclusion

	sectionCount
)

// NarrativeSectionCount is the number of fixed report sections.
const NarrativeSectionCount = int(sectionCount)

var sectionKeys = [sectionCount]string{
	"executive_summary",
	"key_findings",
	"methodology",
	"maintenance_performance",
	"recommendations",
	"conclusion",
}

var sectionTitles = [sectionCount]string{
	"Executive Summary",
	"Key Findings",
	"Methodology",
	"Maintenance Performance",
	"Recommendations",
	"Conclusion",
}

// NarrativeSections returns every section in document order.
func NarrativeSections() []NarrativeSection {
	out := make([]NarrativeSection, 0, sectionCount)
	for s := SectionExecutiveSummary; s < sectionCount; s++ {
		out = append(out, s)
	}
	return out
}

// IsValid returns true if s is one of the fixed sections.
func (s NarrativeSection) IsValid() bool {
	return s >= SectionExecutiveSummary && s < sectionCount
}

// String returns the machine-readable key, e.g. "key_findings".
func (s NarrativeSection) String() string {
	if !s.IsValid() {
		return "unknown"
	}
	return sectionKeys[s]
}

// Title returns the heading used in the rendered document.
func (s NarrativeSection) Title() string {
	if !s.IsValid() {
		return ""
	}
	return sectionTitles[s]
}

// SectionNarratives holds one text slot per fixed section.
type SectionNarratives [sectionCount]string

// Get returns the narrative for s.
func (n *SectionNarratives) Get(s NarrativeSection) string {
	if !s.IsValid() {
		return ""
	}
	return n[s]
}

// Set stores text for s.
func (n *SectionNarratives) Set(s NarrativeSection, text string) {
	if s.IsValid() {
		n[s] = text
	}
}

// Complete returns true when every section has text.
func (n *SectionNarratives) Complete() bool {
	for _, text := range n {
		if strings.TrimSpace(text) == "" {
			return false
		}
	}
	return true
}

// =============================================================================
// Deficiencies and Photos
// =============================================================================

// Deficiency is one finding recorded against a device during an audit.
type Deficiency struct {
	ID            int64
	DeviceID      string
	EquipmentCode string
	ConditionCode string
	RemedyCode    string
	OverlayCode   string
	Equipment     string
	Condition     string
	Remedy        string
	Note          string
	Resolved      bool
	ResolvedAt    *time.Time
}

// ConditionKey returns the code used to tally this deficiency.
func (d *Deficiency) ConditionKey() string {
	if code := strings.TrimSpace(d.ConditionCode); code != "" {
		return strings.ToUpper(code)
	}
	if cond := strings.TrimSpace(d.Condition); cond != "" {
		return cond
	}
	return "Unspecified"
}

// Photo references an audit photograph held in object storage.
type Photo struct {
	Filename    string
	ContentType string
	StorageKey  string
}

// =============================================================================
// Device
// =============================================================================

// Device is one audited elevator or escalator with its findings.
type Device struct {
	AuditID                uuid.UUID
	DeviceID               string
	BankName               string
	DeviceType             string
	SubmittedOn            time.Time
	SubmittedBy            string
	BuildingOwner          string
	ElevatorContractor     string
	ControllerManufacturer string
	ControllerModel        string
	ControllerInstallYear  int
	MachineManufacturer    string
	MachineType            string
	Capacity               int
	CarSpeed               int
	NumberOfStops          int
	RatingOverall          int
	GeneralNotes           string
	Deficiencies           []Deficiency
	Photos                 []Photo

	// Narrative is written once by the fan-out stage.
	Narrative string
}

// Label returns a human-readable identifier for the device.
func (d *Device) Label() string {
	switch {
	case strings.TrimSpace(d.DeviceID) != "":
		return strings.TrimSpace(d.DeviceID)
	case strings.TrimSpace(d.BankName) != "":
		return strings.TrimSpace(d.BankName)
	default:
		return d.AuditID.String()
	}
}

// IsEscalator returns true for escalators and moving walks.
func (d *Device) IsEscalator() bool {
	t := strings.ToLower(d.DeviceType)
	return strings.Contains(t, "escalator") || strings.Contains(t, "walk")
}

// OpenDeficiencies returns the number of unresolved deficiencies.
func (d *Device) OpenDeficiencies() int {
	n := 0
	for i := range d.Deficiencies {
		if !d.Deficiencies[i].Resolved {
			n++
		}
	}
	return n
}

// ConditionTypes returns the distinct condition keys on this device in first-seen order.
func (d *Device) ConditionTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for i := range d.Deficiencies {
		key := d.Deficiencies[i].ConditionKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// =============================================================================
// Summary and Report Data
// =============================================================================

// ConditionCount is one row of the per-condition-code tally.
type ConditionCount struct {
	Code  string
	Count int
}

// Summary aggregates counts across all devices and owns the device list.
type Summary struct {
	Address             string
	BuildingOwner       string
	ElevatorContractor  string
	AuditCount          int
	DeviceCount         int
	DeficiencyCount     int
	OpenDeficiencyCount int
	FirstAudit          time.Time
	LastAudit           time.Time
	ConditionTally      []ConditionCount
	Devices             []Device
	Narratives          SectionNarratives
}

// ReportData is the in-memory report tree for one job. It is never persisted.
type ReportData struct {
	Address    string
	LocationID string
	Summary    Summary
}

// NewReportData builds the report tree and computes every aggregate.
func NewReportData(address, locationID string, devices []Device) *ReportData {
	data := &ReportData{
		Address:    address,
		LocationID: locationID,
		Summary: Summary{
			Address: address,
			Devices: devices,
		},
	}
	data.Summary.recount()
	return data
}

func (s *Summary) recount() {
	tally := make(map[string]int)
	audits := make(map[uuid.UUID]bool)
	s.DeficiencyCount = 0
	s.OpenDeficiencyCount = 0
	s.FirstAudit = time.Time{}
	s.LastAudit = time.Time{}

	for i := range s.Devices {
		d := &s.Devices[i]
		audits[d.AuditID] = true
		if s.BuildingOwner == "" {
			s.BuildingOwner = strings.TrimSpace(d.BuildingOwner)
		}
		if s.ElevatorContractor == "" {
			s.ElevatorContractor = strings.TrimSpace(d.ElevatorContractor)
		}
		if !d.SubmittedOn.IsZero() {
			if s.FirstAudit.IsZero() || d.SubmittedOn.Before(s.FirstAudit) {
				s.FirstAudit = d.SubmittedOn
			}
			if d.SubmittedOn.After(s.LastAudit) {
				s.LastAudit = d.SubmittedOn
			}
		}
		for j := range d.Deficiencies {
			s.DeficiencyCount++
			if !d.Deficiencies[j].Resolved {
				s.OpenDeficiencyCount++
			}
			tally[d.Deficiencies[j].ConditionKey()]++
		}
	}

	s.AuditCount = len(audits)
	s.DeviceCount = len(s.Devices)
	s.ConditionTally = make([]ConditionCount, 0, len(tally))
	for code, count := range tally {
		s.ConditionTally = append(s.ConditionTally, ConditionCount{Code: code, Count: count})
	}
	sort.Slice(s.ConditionTally, func(i, j int) bool {
		a, b := s.ConditionTally[i], s.ConditionTally[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Code < b.Code
	})
}

// Devices returns the ordered device list.
func (r *ReportData) Devices() []Device {
	return r.Summary.Devices
}

// IsEmpty returns true when no audits were loaded.
func (r *ReportData) IsEmpty() bool {
	return r == nil || r.Summary.AuditCount == 0
}

// AuditIDs returns the set of audits represented in the report.
func (r *ReportData) AuditIDs() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(r.Summary.Devices))
	for i := range r.Summary.Devices {
		out[r.Summary.Devices[i].AuditID] = struct{}{}
	}
	return out
}

// PhotoCount returns the number of photographs across all devices.
func (r *ReportData) PhotoCount() int {
	n := 0
	for i := range r.Summary.Devices {
		n += len(r.Summary.Devices[i].Photos)
	}
	return n
}

// =============================================================================
// Location Profile
// =============================================================================

// LocationProfile carries canonical display values for a building.
type LocationProfile struct {
	LocationID    string
	Address       string
	BuildingOwner string
	Street        string
	City          string
	State         string
	Zip           string
	ContactName   string
	ContactEmail  string
}
