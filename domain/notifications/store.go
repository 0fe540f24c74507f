package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Store persists notification requests for the configured systems.
type Store struct {
	systems []string
	log     *slog.Logger
}

// NewStore creates a store registering requests for every system in
// NOTIFIER_SYSTEMS.
func NewStore(cfg *config.Config, log *slog.Logger) (*Store, error) {
	targets, err := cfg.Notifier.Targets()
	if err != nil {
		return nil, err
	}
	systems := make([]string, len(targets))
	for i, t := range targets {
		systems[i] = t.Name
	}
	return NewStoreForSystems(systems, log), nil
}

// NewStoreForSystems creates a store for an explicit system list.
func NewStoreForSystems(systems []string, log *slog.Logger) *Store {
	return &Store{
		systems: systems,
		log:     log.With(logger.Scope("notifications.store")),
	}
}

// Systems returns the systems a report is registered for.
func (s *Store) Systems() []string {
	return s.systems
}

// Register creates one pending request per system for reportID, due at
// now. A system that already has a pending request for the report is
// left as it is. Must run on the transaction that created or changed the
// report.
func (s *Store) Register(ctx context.Context, tx bun.IDB, reportID string, now time.Time) ([]*Request, error) {
	now = now.Truncate(time.Microsecond)

	created := make([]*Request, 0, len(s.systems))
	for _, system := range s.systems {
		req := &Request{
			ReportID:      reportID,
			System:        system,
			CreatedAt:     now,
			NextAttemptAt: now,
		}
		res, err := tx.NewInsert().
			Model(req).
			Column("report_id", "system", "created_at", "attempt_count", "next_attempt_at").
			On("CONFLICT (report_id, system) DO NOTHING").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return nil, apperror.NewDatabase(fmt.Sprintf("register notification for %s", system), err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			created = append(created, req)
		}
	}

	s.log.Debug("notifications registered",
		slog.String("report_id", reportID),
		slog.Int("count", len(created)))
	return created, nil
}

// ClaimDue locks one request with next_attempt_at <= now, skipping rows
// locked by other transactions. Returns nil if nothing is due.
func (s *Store) ClaimDue(ctx context.Context, tx bun.IDB, now time.Time) (*Request, error) {
	req := new(Request)
	err := jobs.ClaimOne(tx.NewSelect().
		Model(req).
		Where("next_attempt_at <= ?", now).
		OrderExpr("next_attempt_at ASC, id ASC")).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewDatabase("claim notification", err)
	}
	return req, nil
}

// Delete removes a delivered request.
func (s *Store) Delete(ctx context.Context, tx bun.IDB, id string) error {
	_, err := tx.NewDelete().
		Model((*Request)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.NewDatabase("delete notification", err)
	}
	return nil
}

// Reschedule records a failed attempt. The update only applies while the
// stored values are not newer, so attempt_count and next_attempt_at never
// decrease.
func (s *Store) Reschedule(ctx context.Context, tx bun.IDB, req *Request, attemptCount int, next time.Time, lastError string) error {
	msg := jobs.TruncateError(lastError)
	res, err := tx.NewUpdate().
		Model((*Request)(nil)).
		Set("attempt_count = ?", attemptCount).
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", msg).
		Where("id = ?", req.ID).
		Where("attempt_count < ?", attemptCount).
		Where("next_attempt_at <= ?", next).
		Exec(ctx)
	if err != nil {
		return apperror.NewDatabase("reschedule notification", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apperror.NewDatabase("reschedule notification", fmt.Errorf("request %s changed concurrently", req.ID))
	}

	req.AttemptCount = attemptCount
	req.NextAttemptAt = next
	req.LastError = &msg
	return nil
}

// Get loads a request by id.
func (s *Store) Get(ctx context.Context, db bun.IDB, id string) (*Request, error) {
	req := new(Request)
	err := db.NewSelect().Model(req).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("notification request", id)
	}
	if err != nil {
		return nil, apperror.NewDatabase("get notification", err)
	}
	return req, nil
}

// ForReport lists the pending requests of a report.
func (s *Store) ForReport(ctx context.Context, db bun.IDB, reportID string) ([]Request, error) {
	var reqs []Request
	err := db.NewSelect().
		Model(&reqs).
		Where("report_id = ?", reportID).
		OrderExpr("system ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.NewDatabase("list notifications", err)
	}
	return reqs, nil
}

// PendingCount is the number of pending requests of one system.
type PendingCount struct {
	System string `bun:"system" json:"system"`
	Count  int    `bun:"count" json:"count"`
}

// CountPending returns pending request counts per system.
func (s *Store) CountPending(ctx context.Context, db bun.IDB) ([]PendingCount, error) {
	var counts []PendingCount
	err := db.NewSelect().
		Model((*Request)(nil)).
		ColumnExpr("system, count(*) AS count").
		Group("system").
		OrderExpr("system ASC").
		Scan(ctx, &counts)
	if err != nil {
		return nil, apperror.NewDatabase("count pending notifications", err)
	}
	return counts, nil
}
