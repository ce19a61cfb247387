package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

// =============================================================================
// System prompts
// =============================================================================

const consultantBase = `You are a senior vertical transportation consultant writing a professional building audit report for a property owner.
Write in clear, formal prose suitable for a compliance document. Use only the facts provided; never invent equipment, dates, counts or code references.
Plain text only. You may use "-" bullets, "#" headings and **bold** sparingly. Do not use tables, HTML or LaTeX.`

const elevatorFocus = `Your specialty is traction and hydraulic elevators: controllers, machines, hoistways, pits, door equipment and car safety devices.`

const escalatorFocus = `Your specialty is escalators and moving walks: steps, comb plates, handrails, drive machinery, skirt panels and safety switches.`

const mixedFocus = `The portfolio contains both elevators and escalators; address each equipment class in its own terms.`

// SystemPrompt returns the report-level system prompt for the portfolio mix.
func SystemPrompt(devices []domain.Device) string {
	elevators, escalators := 0, 0
	for i := range devices {
		if devices[i].IsEscalator() {
			escalators++
		} else {
			elevators++
		}
	}
	switch {
	case escalators > 0 && elevators > 0:
		return consultantBase + "\n" + mixedFocus
	case escalators > 0:
		return consultantBase + "\n" + escalatorFocus
	default:
		return consultantBase + "\n" + elevatorFocus
	}
}

// DeviceSystemPrompt returns the system prompt for one device's narrative.
func DeviceSystemPrompt(d *domain.Device) string {
	if d.IsEscalator() {
		return consultantBase + "\n" + escalatorFocus
	}
	return consultantBase + "\n" + elevatorFocus
}

// =============================================================================
// Section prompts
// =============================================================================

var sectionInstructions = map[domain.NarrativeSection]string{
	domain.SectionExecutiveSummary:       "Write the Executive Summary: two or three paragraphs giving the owner the overall condition of the equipment, the scale of the findings and the most important actions.",
	domain.SectionKeyFindings:            "Write the Key Findings: the most significant deficiency patterns across the devices, citing the condition codes and counts from the data. Use a short bullet list where it helps.",
	domain.SectionMethodology:            "Write the Methodology: how the audit was performed (on-site visual and operational inspection of each device, recording of deficiencies by equipment, condition and remedy, and photographs), and the audit dates.",
	domain.SectionMaintenancePerformance: "Write the Maintenance Performance assessment: judge the elevator contractor's maintenance quality from the open deficiency counts, their types and the overall ratings.",
	domain.SectionRecommendations:        "Write the Recommendations: prioritized, actionable steps for the owner and the contractor, most urgent first.",
	domain.SectionConclusion:             "Write the Conclusion: one or two paragraphs summarizing the audit outcome and the recommended follow-up.",
}

// SectionPrompt returns the prompt for one fixed section. contextJSON is
// the document from ReportContext.
func SectionPrompt(section domain.NarrativeSection, contextJSON string) string {
	var b strings.Builder
	b.WriteString(sectionInstructions[section])
	b.WriteString("\nDo not repeat the section title.\n\nAudit data (JSON):\n")
	b.WriteString(contextJSON)
	return b.String()
}

// =============================================================================
// Device prompts
// =============================================================================

// DevicePrompt returns the prompt for one device's narrative.
func DevicePrompt(d *domain.Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a one to two paragraph assessment of device %s for the device details section of the report.\n", d.Label())
	b.WriteString("Describe its condition, the deficiencies found and what must be corrected. If there are no deficiencies, say so briefly.\n\n")

	writeField(&b, "Device type", d.DeviceType)
	writeField(&b, "Bank", d.BankName)
	writeField(&b, "Controller", strings.TrimSpace(d.ControllerManufacturer+" "+d.ControllerModel))
	if d.ControllerInstallYear > 0 {
		writeField(&b, "Controller installed", fmt.Sprint(d.ControllerInstallYear))
	}
	writeField(&b, "Machine", strings.TrimSpace(d.MachineManufacturer+" "+d.MachineType))
	if d.Capacity > 0 {
		writeField(&b, "Capacity (lbs)", fmt.Sprint(d.Capacity))
	}
	if d.CarSpeed > 0 {
		writeField(&b, "Speed (fpm)", fmt.Sprint(d.CarSpeed))
	}
	if d.NumberOfStops > 0 {
		writeField(&b, "Stops", fmt.Sprint(d.NumberOfStops))
	}
	if d.RatingOverall > 0 {
		writeField(&b, "Overall rating (1-10)", fmt.Sprint(d.RatingOverall))
	}

	fmt.Fprintf(&b, "\nDeficiencies (%d, %d open):\n", len(d.Deficiencies), d.OpenDeficiencies())
	for i := range d.Deficiencies {
		def := &d.Deficiencies[i]
		status := "open"
		if def.Resolved {
			status = "resolved"
		}
		fmt.Fprintf(&b, "- [%s] equipment: %s; condition: %s; remedy: %s",
			status,
			joinCode(def.EquipmentCode, def.Equipment),
			joinCode(def.ConditionCode, def.Condition),
			joinCode(def.RemedyCode, def.Remedy),
		)
		if note := strings.TrimSpace(def.Note); note != "" {
			fmt.Fprintf(&b, "; note: %s", note)
		}
		b.WriteByte('\n')
	}

	if notes := strings.TrimSpace(d.GeneralNotes); notes != "" {
		b.WriteString("\nInspector notes:\n")
		b.WriteString(notes)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func joinCode(code, text string) string {
	code, text = strings.TrimSpace(code), strings.TrimSpace(text)
	switch {
	case code != "" && text != "":
		return code + " (" + text + ")"
	case code != "":
		return code
	case text != "":
		return text
	default:
		return "n/a"
	}
}

// =============================================================================
// Report context
// =============================================================================

type contextDevice struct {
	Device           string   `json:"device"`
	Type             string   `json:"type,omitempty"`
	Bank             string   `json:"bank,omitempty"`
	Rating           int      `json:"overall_rating,omitempty"`
	Deficiencies     int      `json:"deficiencies"`
	OpenDeficiencies int      `json:"open_deficiencies"`
	Conditions       []string `json:"conditions,omitempty"`
}

type contextCondition struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

type reportContext struct {
	Address             string             `json:"address"`
	BuildingOwner       string             `json:"building_owner,omitempty"`
	ElevatorContractor  string             `json:"elevator_contractor,omitempty"`
	FirstAudit          string             `json:"first_audit,omitempty"`
	LastAudit           string             `json:"last_audit,omitempty"`
	Audits              int                `json:"audits"`
	Devices             int                `json:"devices"`
	Deficiencies        int                `json:"deficiencies"`
	OpenDeficiencies    int                `json:"open_deficiencies"`
	ConditionTally      []contextCondition `json:"condition_tally"`
	DeviceSummaries     []contextDevice    `json:"device_summaries"`
	InspectorNotes      string             `json:"job_notes,omitempty"`
	OwnerRecommendation string             `json:"requested_recommendations,omitempty"`
}

// ReportContext serializes the report tree into the JSON document shared by
// every section prompt.
func ReportContext(job domain.ReportJob, data *domain.ReportData) (string, error) {
	s := data.Summary
	rc := reportContext{
		Address:             data.Address,
		BuildingOwner:       s.BuildingOwner,
		ElevatorContractor:  s.ElevatorContractor,
		Audits:              s.AuditCount,
		Devices:             s.DeviceCount,
		Deficiencies:        s.DeficiencyCount,
		OpenDeficiencies:    s.OpenDeficiencyCount,
		ConditionTally:      make([]contextCondition, 0, len(s.ConditionTally)),
		DeviceSummaries:     make([]contextDevice, 0, len(s.Devices)),
		InspectorNotes:      job.Notes,
		OwnerRecommendation: job.Recommendations,
	}
	if !s.FirstAudit.IsZero() {
		rc.FirstAudit = s.FirstAudit.Format("2006-01-02")
		rc.LastAudit = s.LastAudit.Format("2006-01-02")
	}
	for _, c := range s.ConditionTally {
		rc.ConditionTally = append(rc.ConditionTally, contextCondition{Code: c.Code, Count: c.Count})
	}
	for i := range s.Devices {
		d := &s.Devices[i]
		rc.DeviceSummaries = append(rc.DeviceSummaries, contextDevice{
			Device:           d.Label(),
			Type:             d.DeviceType,
			Bank:             d.BankName,
			Rating:           d.RatingOverall,
			Deficiencies:     len(d.Deficiencies),
			OpenDeficiencies: d.OpenDeficiencies(),
			Conditions:       d.ConditionTypes(),
		})
	}

	out, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report context: %w", err)
	}
	return string(out), nil
}

// =============================================================================
// Fallback
// =============================================================================

// Fallback returns the deterministic narrative used when a device's
// generation fails. It depends only on the device's own data.
func Fallback(d *domain.Device) string {
	kind := "elevator"
	if d.IsEscalator() {
		kind = "escalator"
	}
	total := len(d.Deficiencies)
	if total == 0 {
		return fmt.Sprintf("No deficiencies were recorded for %s during this audit. The %s should remain on its regular maintenance schedule.", d.Label(), kind)
	}

	noun := "deficiencies"
	if total == 1 {
		noun = "deficiency"
	}
	return fmt.Sprintf(
		"%s has %d recorded %s (%d open), involving the following conditions: %s. "+
			"The open items should be corrected by the elevator contractor and verified at the next inspection of this %s.",
		d.Label(), total, noun, d.OpenDeficiencies(), strings.Join(d.ConditionTypes(), ", "), kind,
	)
}
