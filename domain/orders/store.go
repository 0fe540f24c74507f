package orders

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Store persists orders. Every method takes the bun.IDB to run on so
// callers decide the transaction boundary.
type Store struct {
	log *slog.Logger
}

// NewStore creates an order store.
func NewStore(log *slog.Logger) *Store {
	return &Store{log: log.With(logger.Scope("orders.store"))}
}

// Insert persists a new order and returns its id. A message id that was
// already stored is not inserted again; the existing order's id is
// returned with inserted=false.
func (s *Store) Insert(ctx context.Context, db bun.IDB, order *Order) (id string, inserted bool, err error) {
	res, err := db.NewInsert().
		Model(order).
		Column("source", "message_id", "payload").
		On("CONFLICT (message_id) DO NOTHING").
		Returning("id, received_at").
		Exec(ctx)
	if err != nil {
		return "", false, apperror.NewDatabase("insert order", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return order.ID, true, nil
	}

	existing := new(Order)
	err = db.NewSelect().
		Model(existing).
		Column("id").
		Where("message_id = ?", order.MessageID).
		Scan(ctx)
	if err != nil {
		return "", false, apperror.NewDatabase("load duplicate order", err)
	}

	s.log.Info("duplicate queue message ignored",
		slog.String("message_id", order.MessageID),
		slog.String("order_id", existing.ID))
	return existing.ID, false, nil
}

// ClaimNextUnprocessed locks and returns the oldest unprocessed order, or
// nil if none is available. Orders locked by other transactions are
// skipped, so concurrent claimants never receive the same row. tx must
// be a transaction; the lock is held until it ends.
func (s *Store) ClaimNextUnprocessed(ctx context.Context, tx bun.IDB) (*Order, error) {
	order := new(Order)
	err := jobs.ClaimOne(tx.NewSelect().
		Model(order).
		Where("processed_at IS NULL").
		OrderExpr("received_at ASC, id ASC")).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewDatabase("claim order", err)
	}
	return order, nil
}

// MarkProcessed sets processed_at if it is still null. It reports whether
// a row changed; false means the order was already processed.
func (s *Store) MarkProcessed(ctx context.Context, tx bun.IDB, id string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Order)(nil)).
		Set("processed_at = now()").
		Where("id = ?", id).
		Where("processed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, apperror.NewDatabase("mark order processed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.NewDatabase("mark order processed", err)
	}
	return n == 1, nil
}

// Get loads one order by id.
func (s *Store) Get(ctx context.Context, db bun.IDB, id string) (*Order, error) {
	order := new(Order)
	err := db.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("order", id)
	}
	if err != nil {
		return nil, apperror.NewDatabase("get order", err)
	}
	return order, nil
}

// CountUnprocessed returns the number of orders waiting for processing.
func (s *Store) CountUnprocessed(ctx context.Context, db bun.IDB) (int, error) {
	n, err := db.NewSelect().
		Model((*Order)(nil)).
		Where("processed_at IS NULL").
		Count(ctx)
	if err != nil {
		return 0, apperror.NewDatabase("count unprocessed orders", err)
	}
	return n, nil
}
