package jobs

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/liftaudit/internal/domain"
	"github.com/google/uuid"
)

// DataLoader loads the report tree for a job's target.
type DataLoader interface {
	LoadReport(ctx context.Context, address, locationID string, includeAll bool, auditIDs []uuid.UUID) (*domain.ReportData, error)
}

// ProfileResolver looks up the canonical display values for a building.
type ProfileResolver interface {
	ResolveLocation(ctx context.Context, address, locationID string) (*domain.LocationProfile, error)
}

// Assembly is the input every later stage reads.
type Assembly struct {
	Data    *domain.ReportData
	Profile *domain.LocationProfile
}

// Assembler turns a job into its report tree and, when available, a
// location profile.
type Assembler struct {
	loader   DataLoader
	profiles ProfileResolver
	logger   *slog.Logger
}

// NewAssembler creates an Assembler. profiles may be nil.
func NewAssembler(loader DataLoader, profiles ProfileResolver, logger *slog.Logger) *Assembler {
	return &Assembler{loader: loader, profiles: profiles, logger: logger}
}

// Assemble loads the job's audits. A job that matches no audits fails with
// domain.ErrNoData. Profile lookup failures are logged and ignored.
func (a *Assembler) Assemble(ctx context.Context, job domain.ReportJob) (Assembly, error) {
	const op = "jobs.Assemble"

	data, err := a.loader.LoadReport(ctx, job.Address, job.LocationID, job.IncludeAll, job.AuditIDs)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			return Assembly{}, domain.Wrap(err, domain.EDATALOAD, op, "failed to load report data")
		}
		return Assembly{}, err
	}
	if data.IsEmpty() {
		return Assembly{}, domain.Wrap(domain.ErrNoData, domain.EDATALOAD, op, "no audits found for "+target(job))
	}

	out := Assembly{Data: data}
	if a.profiles == nil {
		return out, nil
	}

	profile, err := a.profiles.ResolveLocation(ctx, data.Address, job.LocationID)
	if err != nil {
		level := slog.LevelWarn
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			level = slog.LevelDebug
		}
		a.logger.Log(ctx, level, "location profile unavailable",
			"job_id", job.JobID,
			"address", data.Address,
			"error", err,
		)
		return out, nil
	}
	out.Profile = profile
	return out, nil
}

func target(job domain.ReportJob) string {
	if job.LocationID != "" {
		return "location " + job.LocationID
	}
	return job.Address
}
