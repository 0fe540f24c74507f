package reports

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Store persists reports and their variants.
type Store struct {
	log *slog.Logger
}

// NewStore creates a report store.
func NewStore(log *slog.Logger) *Store {
	return &Store{log: log.With(logger.Scope("reports.store"))}
}

// Create inserts report and its variants on tx. A report without an id
// gets a new one; generated ids and timestamps are written back to the
// structs.
func (s *Store) Create(ctx context.Context, tx bun.IDB, report *Report, variants []*Variant) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	_, err := tx.NewInsert().
		Model(report).
		Column("id", "order_id", "org_number", "type", "value_date").
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return apperror.NewDatabase("insert report", err)
	}

	for _, v := range variants {
		v.ReportID = report.ID
		v.Size = int64(len(v.Content))
		_, err := tx.NewInsert().
			Model(v).
			Column("report_id", "format", "filename", "content", "size").
			Returning("id, created_at").
			Exec(ctx)
		if err != nil {
			return apperror.NewDatabase("insert variant", err)
		}
	}
	return nil
}

// Get loads a report by id.
func (s *Store) Get(ctx context.Context, db bun.IDB, id string) (*Report, error) {
	report := new(Report)
	err := db.NewSelect().Model(report).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("report", id)
	}
	if err != nil {
		return nil, apperror.NewDatabase("get report", err)
	}
	return report, nil
}

// ForOrder returns the report generated from orderID, or nil.
func (s *Store) ForOrder(ctx context.Context, db bun.IDB, orderID string) (*Report, error) {
	report := new(Report)
	err := db.NewSelect().Model(report).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewDatabase("get report for order", err)
	}
	return report, nil
}

// Variants lists a report's variants ordered by format.
func (s *Store) Variants(ctx context.Context, db bun.IDB, reportID string) ([]Variant, error) {
	var variants []Variant
	err := db.NewSelect().
		Model(&variants).
		Where("report_id = ?", reportID).
		OrderExpr("format ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.NewDatabase("list variants", err)
	}
	return variants, nil
}

// SetCorrelationID stores the downstream id if none is set yet. It
// reports whether the row changed.
func (s *Store) SetCorrelationID(ctx context.Context, tx bun.IDB, id, correlationID string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Report)(nil)).
		Set("correlation_id = ?", correlationID).
		Where("id = ?", id).
		Where("correlation_id IS NULL").
		Exec(ctx)
	if err != nil {
		return false, apperror.NewDatabase("set correlation id", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ClaimArchivable locks the oldest unarchived report created before
// cutoff, skipping reports locked elsewhere. Returns nil if none.
func (s *Store) ClaimArchivable(ctx context.Context, tx bun.IDB, cutoff time.Time) (*Report, error) {
	report := new(Report)
	err := jobs.ClaimOne(tx.NewSelect().
		Model(report).
		Where("archived_at IS NULL").
		Where("created_at < ?", cutoff).
		OrderExpr("created_at ASC, id ASC")).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewDatabase("claim archivable report", err)
	}
	return report, nil
}

// MarkArchived sets archived_at if it is still null.
func (s *Store) MarkArchived(ctx context.Context, tx bun.IDB, id string, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Report)(nil)).
		Set("archived_at = ?", at).
		Where("id = ?", id).
		Where("archived_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, apperror.NewDatabase("archive report", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
