// Package audit writes the append-only report event trail. Events are
// always written on the caller's transaction so the trail commits or
// rolls back together with the change it records.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Kind identifies what happened to a report.
type Kind string

const (
	KindReportCreated         Kind = "REPORT_CREATED"
	KindVariantCreated        Kind = "VARIANT_CREATED"
	KindNotificationDelivered Kind = "NOTIFICATION_DELIVERED"
	KindReportArchived        Kind = "REPORT_ARCHIVED"
)

// Actor names used by the background components.
const (
	ActorProcessor = "order-processor"
	ActorNotifier  = "notification-scheduler"
	ActorArchiver  = "archiver"
)

// Event is one row in audit_log.
type Event struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ReportID  string    `bun:"report_id,type:uuid,notnull"`
	VariantID *string   `bun:"variant_id,type:uuid"`
	Timestamp time.Time `bun:"timestamp,notnull,default:now()"`
	Kind      Kind      `bun:"kind,notnull"`
	Actor     string    `bun:"actor,notnull"`
	Note      *string   `bun:"note"`
}

// Log appends audit events.
type Log struct {
	log *slog.Logger
}

// NewLog creates an audit log.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log.With(logger.Scope("audit"))}
}

var Module = fx.Module("audit",
	fx.Provide(NewLog),
)

// Append inserts e within tx. A zero Timestamp is set to the database clock.
func (l *Log) Append(ctx context.Context, tx bun.IDB, e *Event) error {
	if _, err := insertQuery(tx, e).Exec(ctx); err != nil {
		return apperror.NewDatabase("append audit event", err)
	}

	l.log.Debug("audit event",
		slog.String("report_id", e.ReportID),
		slog.String("kind", string(e.Kind)),
		slog.String("actor", e.Actor))
	return nil
}

func insertQuery(tx bun.IDB, e *Event) *bun.InsertQuery {
	q := tx.NewInsert().Model(e).Returning("id, timestamp")
	if e.Timestamp.IsZero() {
		return q.ExcludeColumn("id", "timestamp")
	}
	return q.ExcludeColumn("id")
}

// ForReport returns the events of one report ordered by timestamp.
func (l *Log) ForReport(ctx context.Context, db bun.IDB, reportID string) ([]Event, error) {
	var events []Event
	err := db.NewSelect().
		Model(&events).
		Where("report_id = ?", reportID).
		OrderExpr("timestamp ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.NewDatabase("list audit events", err)
	}
	return events, nil
}

// Note returns a pointer to s, or nil when s is empty.
func Note(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
