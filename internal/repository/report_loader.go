package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
)

// ReportLoader assembles report trees and location profiles from audit tables.
type ReportLoader struct {
	q *Queries
}

// NewReportLoader creates a ReportLoader.
func NewReportLoader(db DBTX) *ReportLoader {
	return &ReportLoader{q: New(db)}
}

// LoadReport loads every audit for address (or location) and groups its
// deficiencies and photos under one device entry per audit. When includeAll
// is false only the audits named in auditIDs are returned.
func (l *ReportLoader) LoadReport(ctx context.Context, address, locationID string, includeAll bool, auditIDs []uuid.UUID) (*domain.ReportData, error) {
	const op = "repository.LoadReport"

	audits, err := l.q.ListReportAudits(ctx, ListReportAuditsParams{
		Address:    address,
		LocationID: locationID,
		IncludeAll: includeAll,
		AuditIDs:   auditIDs,
	})
	if err != nil {
		return nil, domain.Wrap(err, domain.EDATALOAD, op, "failed to load audits")
	}
	if len(audits) == 0 {
		return domain.NewReportData(address, locationID, nil), nil
	}

	ids := make([]uuid.UUID, 0, len(audits))
	for _, a := range audits {
		ids = append(ids, a.AuditUuid)
	}

	deficiencies, err := l.q.ListDeficienciesByAudits(ctx, ids)
	if err != nil {
		return nil, domain.Wrap(err, domain.EDATALOAD, op, "failed to load deficiencies")
	}
	photos, err := l.q.ListPhotosByAudits(ctx, ids)
	if err != nil {
		return nil, domain.Wrap(err, domain.EDATALOAD, op, "failed to load photos")
	}

	defByAudit := make(map[uuid.UUID][]domain.Deficiency, len(audits))
	for _, d := range deficiencies {
		defByAudit[d.AuditUuid] = append(defByAudit[d.AuditUuid], toDomainDeficiency(d))
	}
	photosByAudit := make(map[uuid.UUID][]domain.Photo, len(audits))
	for _, p := range photos {
		photosByAudit[p.AuditUuid] = append(photosByAudit[p.AuditUuid], domain.Photo{
			Filename:    p.PhotoFilename,
			ContentType: p.ContentType.String,
			StorageKey:  p.StorageKey,
		})
	}

	devices := make([]domain.Device, 0, len(audits))
	for _, a := range audits {
		d := toDomainDevice(a)
		d.Deficiencies = defByAudit[a.AuditUuid]
		d.Photos = photosByAudit[a.AuditUuid]
		devices = append(devices, d)
	}

	if address == "" && audits[0].BuildingAddress.Valid {
		address = audits[0].BuildingAddress.String
	}
	return domain.NewReportData(address, locationID, devices), nil
}

// ResolveLocation returns the location profile for a location id, or for the
// most recent location linked to address when locationID is empty.
func (l *ReportLoader) ResolveLocation(ctx context.Context, address, locationID string) (*domain.LocationProfile, error) {
	const op = "repository.ResolveLocation"

	var (
		row Location
		err error
	)
	if strings.TrimSpace(locationID) != "" {
		row, err = l.q.GetLocationByLocationID(ctx, locationID)
	} else {
		row, err = l.q.GetLocationByAddress(ctx, address)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(op, "location", firstNonEmpty(locationID, address))
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load location")
	}

	return &domain.LocationProfile{
		LocationID:    row.LocationID,
		Address:       joinAddress(row.Street.String, row.City.String, row.State.String, row.ZipCode.String),
		BuildingOwner: row.BuildingOwner.String,
		Street:        row.Street.String,
		City:          row.City.String,
		State:         row.State.String,
		Zip:           row.ZipCode.String,
		ContactName:   row.ContactName.String,
		ContactEmail:  row.ContactEmail.String,
	}, nil
}

func toDomainDevice(a Audit) domain.Device {
	d := domain.Device{
		AuditID:                a.AuditUuid,
		DeviceID:               firstNonEmpty(a.CityID.String, a.BuildingID.String),
		BankName:               a.BankName.String,
		DeviceType:             a.DeviceType.String,
		SubmittedBy:            a.SubmittedBy.String,
		BuildingOwner:          a.BuildingOwner.String,
		ElevatorContractor:     a.ElevatorContractor.String,
		ControllerManufacturer: a.ControllerManufacturer.String,
		ControllerModel:        a.ControllerModel.String,
		ControllerInstallYear:  int(a.ControllerInstallYear.Int32),
		MachineManufacturer:    a.MachineManufacturer.String,
		MachineType:            a.MachineType.String,
		Capacity:               int(a.Capacity.Int32),
		CarSpeed:               int(a.CarSpeed.Int32),
		NumberOfStops:          int(a.NumberOfStops.Int32),
		RatingOverall:          int(a.RatingOverall.Int32),
		GeneralNotes:           a.GeneralNotes.String,
	}
	if a.SubmittedOn.Valid {
		d.SubmittedOn = a.SubmittedOn.Time
	}
	return d
}

func toDomainDeficiency(d AuditDeficiency) domain.Deficiency {
	out := domain.Deficiency{
		ID:            d.ID,
		DeviceID:      d.ViolationDeviceID.String,
		EquipmentCode: d.EquipmentCode.String,
		ConditionCode: d.ConditionCode.String,
		RemedyCode:    d.RemedyCode.String,
		OverlayCode:   d.OverlayCode.String,
		Equipment:     d.ViolationEquipment.String,
		Condition:     d.ViolationCondition.String,
		Remedy:        d.ViolationRemedy.String,
		Note:          d.ViolationNote.String,
		Resolved:      d.ResolvedAt.Valid,
	}
	if d.ResolvedAt.Valid {
		t := d.ResolvedAt.Time
		out.ResolvedAt = &t
	}
	return out
}

func joinAddress(street, city, state, zip string) string {
	var parts []string
	for _, p := range []string{street, city} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	tail := strings.TrimSpace(strings.TrimSpace(state) + " " + strings.TrimSpace(zip))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
