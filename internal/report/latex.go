package report

import (
	"embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

//go:embed templates/*.tex.tmpl
var templateFS embed.FS

// maxChartConditions bounds how many condition codes the bar chart shows.
const maxChartConditions = 12

var templates = template.Must(
	template.New("latex").
		Delims("<<", ">>").
		Funcs(template.FuncMap{
			"tex":  Text,
			"cell": Cell,
			"md":   MarkdownToLaTeX,
			"date": formatDate,
		}).
		ParseFS(templateFS, "templates/*.tex.tmpl"),
)

// Document is everything the LaTeX source is generated from.
type Document struct {
	Job     domain.ReportJob
	Data    *domain.ReportData
	Profile *domain.LocationProfile // optional

	GeneratedAt time.Time
	HasLogo     bool
}

// WriteLaTeX emits the LaTeX source for doc. Output depends only on doc.
func WriteLaTeX(w io.Writer, doc Document) error {
	if doc.Data == nil {
		return domain.Errorf(domain.ERENDER, "report.WriteLaTeX", "no report data")
	}

	name := "full.tex.tmpl"
	if doc.Job.DeficiencyOnly {
		name = "deficiency.tex.tmpl"
	}
	if err := templates.ExecuteTemplate(w, name, newView(doc)); err != nil {
		return domain.Wrap(err, domain.ERENDER, "report.WriteLaTeX", fmt.Sprintf("render %s", name))
	}
	return nil
}

// =============================================================================
// Template view
// =============================================================================

type coverView struct {
	Title         string
	BuildingOwner string
	Street        string
	CityLine      string
	ContactName   string
	ContactEmail  string
	Contractor    string
	LocationID    string
	AuditRange    string
}

type sectionView struct {
	Title    string
	Body     string
	Charts   bool
	Addendum string
}

type fieldRow struct {
	Label string
	Value string
}

type deficiencyRow struct {
	Device    string
	Equipment string
	Condition string
	Remedy    string
	Note      string
	Status    string
}

type deviceView struct {
	Label        string
	Fields       []fieldRow
	Narrative    string
	Notes        string
	Deficiencies []deficiencyRow
	PhotoCount   int
}

type chartView struct {
	BarTicks    string
	BarLabels   string
	BarCoords   string
	ScatterTick string
	ScatterLbls string
	ScatterPts  string
	HasBar      bool
	HasScatter  bool
}

type view struct {
	Cover        coverView
	Summary      domain.Summary
	Sections     []sectionView
	Devices      []deviceView
	Deficiencies []deficiencyRow
	Chart        chartView
	Notes        string
	GeneratedAt  time.Time
	HasLogo      bool
}

func newView(doc Document) view {
	s := doc.Data.Summary
	v := view{
		Cover:       resolveCover(doc),
		Summary:     s,
		Notes:       doc.Job.Notes,
		GeneratedAt: doc.GeneratedAt,
		HasLogo:     doc.HasLogo,
	}

	for _, sec := range domain.NarrativeSections() {
		sv := sectionView{Title: sec.Title(), Body: s.Narratives.Get(sec)}
		switch sec {
		case domain.SectionKeyFindings:
			sv.Charts = true
		case domain.SectionRecommendations:
			sv.Addendum = doc.Job.Recommendations
		}
		v.Sections = append(v.Sections, sv)
	}

	for i := range s.Devices {
		d := &s.Devices[i]
		dv := deviceView{
			Label:      d.Label(),
			Fields:     deviceFields(d),
			Narrative:  d.Narrative,
			Notes:      d.GeneralNotes,
			PhotoCount: len(d.Photos),
		}
		for j := range d.Deficiencies {
			row := newDeficiencyRow(d, &d.Deficiencies[j])
			dv.Deficiencies = append(dv.Deficiencies, row)
			v.Deficiencies = append(v.Deficiencies, row)
		}
		v.Devices = append(v.Devices, dv)
	}

	v.Chart = buildCharts(s)
	return v
}

// resolveCover picks each cover value from the job overrides, then the
// location profile, then the audit data.
func resolveCover(doc Document) coverView {
	c := doc.Job.Cover
	p := doc.Profile
	if p == nil {
		p = &domain.LocationProfile{}
	}
	s := doc.Data.Summary

	title := "Elevator Audit Report"
	if doc.Job.DeficiencyOnly {
		title = "Deficiency List"
	}

	street := first(c.Street, p.Street, doc.Data.Address, p.Address)
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(
		first(c.City, p.City),
		strings.TrimSpace(first(c.State, p.State)+" "+first(c.Zip, p.Zip)),
	), ", "))

	cv := coverView{
		Title:         title,
		BuildingOwner: NormalizeCaps(first(c.BuildingOwner, p.BuildingOwner, s.BuildingOwner)),
		Street:        NormalizeCaps(street),
		CityLine:      NormalizeCaps(cityLine),
		ContactName:   NormalizeCaps(first(c.ContactName, p.ContactName)),
		ContactEmail:  first(c.ContactEmail, p.ContactEmail),
		Contractor:    NormalizeCaps(s.ElevatorContractor),
		LocationID:    first(doc.Data.LocationID, p.LocationID),
	}

	switch {
	case s.FirstAudit.IsZero():
	case s.FirstAudit.Equal(s.LastAudit) || formatDate(s.FirstAudit) == formatDate(s.LastAudit):
		cv.AuditRange = formatDate(s.FirstAudit)
	default:
		cv.AuditRange = formatDate(s.FirstAudit) + " to " + formatDate(s.LastAudit)
	}
	return cv
}

func deviceFields(d *domain.Device) []fieldRow {
	controller := strings.TrimSpace(d.ControllerManufacturer + " " + d.ControllerModel)
	if d.ControllerInstallYear > 0 {
		controller = strings.TrimSpace(controller + " (installed " + strconv.Itoa(d.ControllerInstallYear) + ")")
	}

	rows := []fieldRow{
		{"Device type", d.DeviceType},
		{"Bank", d.BankName},
		{"Controller", controller},
		{"Machine", strings.TrimSpace(d.MachineManufacturer + " " + d.MachineType)},
		{"Capacity", withUnit(d.Capacity, "lbs")},
		{"Car speed", withUnit(d.CarSpeed, "fpm")},
		{"Stops", withUnit(d.NumberOfStops, "")},
		{"Overall rating", withUnit(d.RatingOverall, "of 10")},
		{"Audit date", formatDate(d.SubmittedOn)},
		{"Inspector", d.SubmittedBy},
		{"Open deficiencies", strconv.Itoa(d.OpenDeficiencies()) + " of " + strconv.Itoa(len(d.Deficiencies))},
	}

	out := rows[:0]
	for _, r := range rows {
		if strings.TrimSpace(r.Value) != "" {
			out = append(out, r)
		}
	}
	return out
}

func newDeficiencyRow(d *domain.Device, def *domain.Deficiency) deficiencyRow {
	status := "Open"
	if def.Resolved {
		status = "Resolved"
		if def.ResolvedAt != nil {
			status += " " + formatDate(*def.ResolvedAt)
		}
	}
	return deficiencyRow{
		Device:    first(def.DeviceID, d.Label()),
		Equipment: codeText(def.EquipmentCode, def.Equipment),
		Condition: codeText(def.ConditionCode, def.Condition),
		Remedy:    codeText(def.RemedyCode, def.Remedy),
		Note:      def.Note,
		Status:    status,
	}
}

// buildCharts renders the pgfplots coordinate lists. Labels travel through
// xticklabels, so arbitrary condition codes never appear inside coordinates.
func buildCharts(s domain.Summary) chartView {
	var cv chartView

	tally := s.ConditionTally
	if len(tally) > maxChartConditions {
		tally = tally[:maxChartConditions]
	}
	if len(tally) > 0 {
		ticks := make([]string, len(tally))
		labels := make([]string, len(tally))
		coords := make([]string, len(tally))
		for i, c := range tally {
			ticks[i] = strconv.Itoa(i + 1)
			labels[i] = "{" + Text(c.Code) + "}"
			coords[i] = fmt.Sprintf("(%d,%d)", i+1, c.Count)
		}
		cv.HasBar = true
		cv.BarTicks = strings.Join(ticks, ",")
		cv.BarLabels = strings.Join(labels, ",")
		cv.BarCoords = strings.Join(coords, " ")
	}

	if len(s.Devices) > 0 {
		ticks := make([]string, len(s.Devices))
		labels := make([]string, len(s.Devices))
		points := make([]string, len(s.Devices))
		for i := range s.Devices {
			d := &s.Devices[i]
			ticks[i] = strconv.Itoa(i + 1)
			labels[i] = "{" + Text(d.Label()) + "}"
			points[i] = fmt.Sprintf("(%d,%d)", i+1, len(d.Deficiencies))
		}
		cv.HasScatter = true
		cv.ScatterTick = strings.Join(ticks, ",")
		cv.ScatterLbls = strings.Join(labels, ",")
		cv.ScatterPts = strings.Join(points, " ")
	}
	return cv
}

// =============================================================================
// Helpers
// =============================================================================

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

func withUnit(n int, unit string) string {
	if n <= 0 {
		return ""
	}
	if unit == "" {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(n) + " " + unit
}

func codeText(code, text string) string {
	code, text = strings.TrimSpace(code), strings.TrimSpace(text)
	switch {
	case code != "" && text != "":
		return code + " - " + text
	case code != "":
		return code
	default:
		return text
	}
}

func first(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
