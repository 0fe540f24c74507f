// Package processor turns received orders into reports.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/metrics"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/tracing"
)

type orderStore interface {
	ClaimNextUnprocessed(ctx context.Context, tx bun.IDB) (*orders.Order, error)
	MarkProcessed(ctx context.Context, tx bun.IDB, id string) (bool, error)
}

type reportStore interface {
	Create(ctx context.Context, tx bun.IDB, report *reports.Report, variants []*reports.Variant) error
}

type decoder interface {
	Decode(kind string, payload []byte) (*settlement.Settlement, error)
}

type generator interface {
	Generate(ctx context.Context, report *reports.Report, s *settlement.Settlement) ([]*reports.Variant, error)
}

type auditLog interface {
	Append(ctx context.Context, tx bun.IDB, e *audit.Event) error
}

type registrar interface {
	Register(ctx context.Context, tx bun.IDB, reportID string, now time.Time) ([]*notifications.Request, error)
}

// Processor claims one unprocessed order at a time and, in the same
// transaction, stores its report, variants, audit trail and notification
// requests. Any error rolls the whole unit back and leaves the order
// unprocessed.
type Processor struct {
	orders    orderStore
	reports   reportStore
	decoder   decoder
	generator generator
	audit     auditLog
	notify    registrar
	tx        database.Transactor
	now       func() time.Time
	log       *slog.Logger
}

func newProcessor(orders orderStore, reports reportStore, decoder decoder, generator generator,
	audit auditLog, notify registrar, tx database.Transactor, log *slog.Logger) *Processor {
	return &Processor{
		orders:    orders,
		reports:   reports,
		decoder:   decoder,
		generator: generator,
		audit:     audit,
		notify:    notify,
		tx:        tx,
		now:       time.Now,
		log:       log.With(logger.Scope("processor")),
	}
}

// ProcessNext processes the oldest unprocessed order. It returns Idle when
// there is none.
func (p *Processor) ProcessNext(ctx context.Context) (jobs.Result, error) {
	ctx, span := tracing.Start(ctx, "processor.process_order")
	defer span.End()

	var report *reports.Report
	var orderID string
	err := p.tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		order, err := p.orders.ClaimNextUnprocessed(ctx, tx)
		if err != nil || order == nil {
			return err
		}
		orderID = order.ID
		span.SetAttributes(tracing.OrderID.String(order.ID))
		report, err = p.process(ctx, tx, order)
		return err
	})

	switch {
	case err != nil:
		code := apperror.Code(err)
		metrics.OrdersProcessed.WithLabelValues(metrics.OutcomeFailure, code).Inc()
		span.SetAttributes(tracing.Outcome.String(metrics.OutcomeFailure), attribute.String("oppgjor.error.code", code))
		tracing.Fail(span, err)
		if orderID != "" {
			return jobs.Failed, fmt.Errorf("process order %s: %w", orderID, err)
		}
		return jobs.Failed, err
	case orderID == "":
		span.SetAttributes(tracing.Outcome.String(metrics.OutcomeIdle))
		return jobs.Idle, nil
	}

	span.SetAttributes(tracing.Outcome.String(metrics.OutcomeSuccess), tracing.ReportID.String(report.ID))
	metrics.OrdersProcessed.WithLabelValues(metrics.OutcomeSuccess, "").Inc()
	metrics.ReportsCreated.WithLabelValues(report.Type).Inc()
	p.log.Info("order processed",
		slog.String("order_id", orderID),
		slog.String("report_id", report.ID),
		slog.String("org_number", report.OrgNumber))
	return jobs.Done, nil
}

func (p *Processor) process(ctx context.Context, tx bun.IDB, order *orders.Order) (*reports.Report, error) {
	s, err := p.decoder.Decode(order.Source, order.Payload)
	if err != nil {
		return nil, err
	}

	report := &reports.Report{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		OrgNumber: s.OrgNumber,
		Type:      order.Source,
		ValueDate: s.ValueDate,
	}
	variants, err := p.generator.Generate(ctx, report, s)
	if err != nil {
		return nil, err
	}
	if err := p.reports.Create(ctx, tx, report, variants); err != nil {
		return nil, err
	}

	ok, err := p.orders.MarkProcessed(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrConflict.WithMessage("order " + order.ID + " already processed")
	}

	if err := p.audit.Append(ctx, tx, &audit.Event{
		ReportID: report.ID,
		Kind:     audit.KindReportCreated,
		Actor:    audit.ActorProcessor,
		Note:     audit.Note("order " + order.ID),
	}); err != nil {
		return nil, err
	}
	for _, v := range variants {
		if err := p.audit.Append(ctx, tx, &audit.Event{
			ReportID:  report.ID,
			VariantID: &v.ID,
			Kind:      audit.KindVariantCreated,
			Actor:     audit.ActorProcessor,
			Note:      audit.Note(v.Filename),
		}); err != nil {
			return nil, err
		}
	}

	if _, err := p.notify.Register(ctx, tx, report.ID, p.now()); err != nil {
		return nil, err
	}
	return report, nil
}
