package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type ReportJob struct {
	ID               int64
	JobID            uuid.UUID
	Address          string
	LocationID       sql.NullString
	DeficiencyOnly   bool
	IncludeAll       bool
	AuditIDs         []uuid.UUID
	Notes            sql.NullString
	Recommendations  sql.NullString
	Cover            pqtype.NullRawMessage
	Status           string
	Error            sql.NullString
	ArtifactFilename sql.NullString
	ArtifactMime     sql.NullString
	ArtifactSize     sql.NullInt64
	ArtifactVersion  sql.NullInt32
	CreatedAt        time.Time
	StartedAt        sql.NullTime
	CompletedAt      sql.NullTime
	UpdatedAt        time.Time
}

type ReportArtifact struct {
	ArtifactFilename sql.NullString
	ArtifactMime     sql.NullString
	ArtifactBytes    []byte
}

type Location struct {
	ID            int64
	LocationID    string
	SiteName      sql.NullString
	Street        sql.NullString
	City          sql.NullString
	State         sql.NullString
	ZipCode       sql.NullString
	BuildingOwner sql.NullString
	ContactName   sql.NullString
	ContactEmail  sql.NullString
}

type Audit struct {
	AuditUuid              uuid.UUID
	LocationID             sql.NullInt64
	SubmittedOn            sql.NullTime
	SubmittedBy            sql.NullString
	BuildingAddress        sql.NullString
	BuildingOwner          sql.NullString
	ElevatorContractor     sql.NullString
	CityID                 sql.NullString
	BuildingID             sql.NullString
	DeviceType             sql.NullString
	BankName               sql.NullString
	ControllerManufacturer sql.NullString
	ControllerModel        sql.NullString
	ControllerInstallYear  sql.NullInt32
	MachineManufacturer    sql.NullString
	MachineType            sql.NullString
	Capacity               sql.NullInt32
	CarSpeed               sql.NullInt32
	NumberOfStops          sql.NullInt32
	RatingOverall          sql.NullInt32
	GeneralNotes           sql.NullString
}

type AuditDeficiency struct {
	ID                 int64
	AuditUuid          uuid.UUID
	SectionCounter     int32
	ViolationDeviceID  sql.NullString
	EquipmentCode      sql.NullString
	ConditionCode      sql.NullString
	RemedyCode         sql.NullString
	OverlayCode        sql.NullString
	ViolationEquipment sql.NullString
	ViolationCondition sql.NullString
	ViolationRemedy    sql.NullString
	ViolationNote      sql.NullString
	ResolvedAt         sql.NullTime
}

type AuditPhoto struct {
	ID            int64
	AuditUuid     uuid.UUID
	PhotoFilename string
	ContentType   sql.NullString
	StorageKey    string
}
