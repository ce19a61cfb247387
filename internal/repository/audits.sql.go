package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const listReportAudits = `-- name: ListReportAudits :many
SELECT a.audit_uuid, a.location_id, a.submitted_on, a.submitted_by, a.building_address,
    a.building_owner, a.elevator_contractor, a.city_id, a.building_id, a.device_type,
    a.bank_name, a.controller_manufacturer, a.controller_model, a.controller_install_year,
    a.machine_manufacturer, a.machine_type, a.capacity, a.car_speed, a.number_of_stops,
    a.rating_overall, a.general_notes
FROM audits a
LEFT JOIN locations l ON a.location_id = l.id
WHERE (($1::text <> '' AND a.building_address = $1::text) OR ($2::text <> '' AND l.location_id = $2::text))
  AND ($3::boolean OR a.audit_uuid = ANY($4::uuid[]))
ORDER BY a.building_id NULLS LAST, a.city_id NULLS LAST, a.submitted_on`

type ListReportAuditsParams struct {
	Address    string
	LocationID string
	IncludeAll bool
	AuditIDs   []uuid.UUID
}

func (q *Queries) ListReportAudits(ctx context.Context, arg ListReportAuditsParams) ([]Audit, error) {
	auditIDs := arg.AuditIDs
	if auditIDs == nil {
		auditIDs = []uuid.UUID{}
	}
	rows, err := q.db.QueryContext(ctx, listReportAudits,
		arg.Address,
		arg.LocationID,
		arg.IncludeAll,
		pq.Array(auditIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Audit
	for rows.Next() {
		var i Audit
		if err := rows.Scan(
			&i.AuditUuid,
			&i.LocationID,
			&i.SubmittedOn,
			&i.SubmittedBy,
			&i.BuildingAddress,
			&i.BuildingOwner,
			&i.ElevatorContractor,
			&i.CityID,
			&i.BuildingID,
			&i.DeviceType,
			&i.BankName,
			&i.ControllerManufacturer,
			&i.ControllerModel,
			&i.ControllerInstallYear,
			&i.MachineManufacturer,
			&i.MachineType,
			&i.Capacity,
			&i.CarSpeed,
			&i.NumberOfStops,
			&i.RatingOverall,
			&i.GeneralNotes,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listDeficienciesByAudits = `-- name: ListDeficienciesByAudits :many
SELECT id, audit_uuid, section_counter, violation_device_id, equipment_code, condition_code,
    remedy_code, overlay_code, violation_equipment, violation_condition, violation_remedy,
    violation_note, resolved_at
FROM audit_deficiencies
WHERE audit_uuid = ANY($1::uuid[])
ORDER BY audit_uuid, section_counter, id`

func (q *Queries) ListDeficienciesByAudits(ctx context.Context, auditIDs []uuid.UUID) ([]AuditDeficiency, error) {
	rows, err := q.db.QueryContext(ctx, listDeficienciesByAudits, pq.Array(auditIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditDeficiency
	for rows.Next() {
		var i AuditDeficiency
		if err := rows.Scan(
			&i.ID,
			&i.AuditUuid,
			&i.SectionCounter,
			&i.ViolationDeviceID,
			&i.EquipmentCode,
			&i.ConditionCode,
			&i.RemedyCode,
			&i.OverlayCode,
			&i.ViolationEquipment,
			&i.ViolationCondition,
			&i.ViolationRemedy,
			&i.ViolationNote,
			&i.ResolvedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPhotosByAudits = `-- name: ListPhotosByAudits :many
SELECT id, audit_uuid, photo_filename, content_type, storage_key
FROM audit_photos
WHERE audit_uuid = ANY($1::uuid[])
ORDER BY audit_uuid, id`

func (q *Queries) ListPhotosByAudits(ctx context.Context, auditIDs []uuid.UUID) ([]AuditPhoto, error) {
	rows, err := q.db.QueryContext(ctx, listPhotosByAudits, pq.Array(auditIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditPhoto
	for rows.Next() {
		var i AuditPhoto
		if err := rows.Scan(
			&i.ID,
			&i.AuditUuid,
			&i.PhotoFilename,
			&i.ContentType,
			&i.StorageKey,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const locationColumns = `l.id, l.location_id, l.site_name, l.street, l.city, l.state, l.zip_code,
    l.building_owner, l.contact_name, l.contact_email`

func scanLocation(row interface{ Scan(...interface{}) error }) (Location, error) {
	var i Location
	err := row.Scan(
		&i.ID,
		&i.LocationID,
		&i.SiteName,
		&i.Street,
		&i.City,
		&i.State,
		&i.ZipCode,
		&i.BuildingOwner,
		&i.ContactName,
		&i.ContactEmail,
	)
	return i, err
}

const getLocationByLocationID = `-- name: GetLocationByLocationID :one
SELECT ` + locationColumns + `
FROM locations l
WHERE l.location_id = $1`

func (q *Queries) GetLocationByLocationID(ctx context.Context, locationID string) (Location, error) {
	row := q.db.QueryRowContext(ctx, getLocationByLocationID, locationID)
	return scanLocation(row)
}

const getLocationByAddress = `-- name: GetLocationByAddress :one
SELECT ` + locationColumns + `
FROM locations l
JOIN audits a ON a.location_id = l.id
WHERE a.building_address = $1
ORDER BY a.submitted_on DESC NULLS LAST
LIMIT 1`

func (q *Queries) GetLocationByAddress(ctx context.Context, address string) (Location, error) {
	row := q.db.QueryRowContext(ctx, getLocationByAddress, address)
	return scanLocation(row)
}
