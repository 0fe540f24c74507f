package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/metrics"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/tracing"
)

// Delivery actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionArchive = "archive"
)

type requestStore interface {
	ClaimDue(ctx context.Context, tx bun.IDB, now time.Time) (*Request, error)
	Delete(ctx context.Context, tx bun.IDB, id string) error
	Reschedule(ctx context.Context, tx bun.IDB, req *Request, attemptCount int, next time.Time, lastError string) error
}

type reportStore interface {
	Get(ctx context.Context, db bun.IDB, id string) (*reports.Report, error)
	SetCorrelationID(ctx context.Context, tx bun.IDB, id, correlationID string) (bool, error)
}

type auditLog interface {
	Append(ctx context.Context, tx bun.IDB, e *audit.Event) error
}

// Attempt describes one delivery attempt.
type Attempt struct {
	Delivered bool
	Action    string
	// Err is the downstream failure when Delivered is false.
	Err error
}

// Scheduler claims due notification requests and delivers them. The
// primary system owns the report's correlation id: it gets a create call
// once and update/archive calls keyed by the stored id afterwards. Other
// systems are addressed by the report id.
type Scheduler struct {
	requests   requestStore
	reports    reportStore
	audit      auditLog
	dispatcher Dispatcher
	tx         database.Transactor
	policy     jobs.RetryPolicy
	primary    string
	now        func() time.Time
	jitter     func() time.Duration
	log        *slog.Logger
}

// SchedulerOptions carries the non-storage settings of a Scheduler.
type SchedulerOptions struct {
	Policy  jobs.RetryPolicy
	Primary string
	// Now and Jitter default to time.Now and Policy.Jitter.
	Now    func() time.Time
	Jitter func() time.Duration
}

func newScheduler(requests requestStore, reports reportStore, audit auditLog, dispatcher Dispatcher,
	tx database.Transactor, opts SchedulerOptions, log *slog.Logger) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Jitter == nil {
		opts.Jitter = opts.Policy.Jitter
	}
	return &Scheduler{
		requests:   requests,
		reports:    reports,
		audit:      audit,
		dispatcher: dispatcher,
		tx:         tx,
		policy:     opts.Policy,
		primary:    opts.Primary,
		now:        opts.Now,
		jitter:     opts.Jitter,
		log:        log.With(logger.Scope("notifications.scheduler")),
	}
}

// ProcessNext runs one unit of work: claim a due request, attempt
// delivery, then delete or reschedule it, all in one transaction.
func (s *Scheduler) ProcessNext(ctx context.Context) (jobs.Result, error) {
	var attempt *Attempt
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		req, err := s.requests.ClaimDue(ctx, tx, s.now())
		if err != nil || req == nil {
			return err
		}
		a, err := s.AttemptDelivery(ctx, tx, req)
		if err != nil {
			return err
		}
		attempt = &a
		return nil
	})
	switch {
	case err != nil:
		return jobs.Failed, err
	case attempt == nil:
		return jobs.Idle, nil
	case !attempt.Delivered:
		return jobs.Failed, attempt.Err
	default:
		return jobs.Done, nil
	}
}

// AttemptDelivery dispatches req on tx. On success the request is deleted;
// on a downstream failure it is rescheduled and the failure is returned in
// Attempt.Err. A returned error means tx must be rolled back.
func (s *Scheduler) AttemptDelivery(ctx context.Context, tx bun.IDB, req *Request) (_ Attempt, err error) {
	ctx, span := tracing.Start(ctx, "notifications.attempt_delivery",
		tracing.ReportID.String(req.ReportID),
		tracing.System.String(req.System),
		attribute.Int("oppgjor.notification.attempt", req.AttemptCount+1),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	report, err := s.reports.Get(ctx, tx, req.ReportID)
	if err != nil {
		return Attempt{}, err
	}

	action, correlationID, dispatchErr := s.dispatch(ctx, req.System, report)
	span.SetAttributes(attribute.String("oppgjor.notification.action", action))

	if correlationID != "" {
		if _, err := s.reports.SetCorrelationID(ctx, tx, report.ID, correlationID); err != nil {
			return Attempt{}, err
		}
		report.CorrelationID = &correlationID
	}

	log := s.log.With(
		slog.String("request_id", req.ID),
		slog.String("report_id", req.ReportID),
		slog.String("system", req.System),
		slog.String("action", action))

	if dispatchErr == nil {
		err := s.audit.Append(ctx, tx, &audit.Event{
			ReportID: report.ID,
			Kind:     audit.KindNotificationDelivered,
			Actor:    audit.ActorNotifier,
			Note:     audit.Note(fmt.Sprintf("system=%s action=%s", req.System, action)),
		})
		if err != nil {
			return Attempt{}, err
		}
		if err := s.requests.Delete(ctx, tx, req.ID); err != nil {
			return Attempt{}, err
		}
		metrics.NotificationAttempts.WithLabelValues(req.System, action, metrics.OutcomeSuccess).Inc()
		span.SetAttributes(tracing.Outcome.String(metrics.OutcomeSuccess))
		log.Info("notification delivered", slog.Int("attempts", req.AttemptCount+1))
		return Attempt{Delivered: true, Action: action}, nil
	}

	attemptCount := req.AttemptCount + 1
	next := s.policy.NextAttemptAt(attemptCount, req.NextAttemptAt, s.jitter())
	if err := s.requests.Reschedule(ctx, tx, req, attemptCount, next, dispatchErr.Error()); err != nil {
		return Attempt{}, err
	}
	metrics.NotificationAttempts.WithLabelValues(req.System, action, metrics.OutcomeFailure).Inc()
	span.SetAttributes(tracing.Outcome.String(metrics.OutcomeFailure))
	tracing.Fail(span, dispatchErr)
	log.Warn("notification failed, rescheduled",
		slog.Int("attempt_count", attemptCount),
		slog.Time("next_attempt_at", next),
		logger.Error(dispatchErr))
	return Attempt{Action: action, Err: dispatchErr}, nil
}

// dispatch performs the downstream calls for system. A non-empty
// correlation id is returned whenever a create succeeded, even if a
// following call failed, so it can be stored.
func (s *Scheduler) dispatch(ctx context.Context, system string, report *reports.Report) (action, correlationID string, err error) {
	if system != s.primary {
		if report.Archived() {
			return ActionArchive, "", s.dispatcher.Archive(ctx, system, report.ID, report)
		}
		return ActionUpdate, "", s.dispatcher.Update(ctx, system, report.ID, report)
	}

	id := ""
	if report.CorrelationID != nil {
		id = *report.CorrelationID
	}
	if id == "" {
		created, err := s.dispatcher.Create(ctx, system, report)
		if err != nil {
			return ActionCreate, "", err
		}
		if !report.Archived() {
			return ActionCreate, created, nil
		}
		return ActionArchive, created, s.dispatcher.Archive(ctx, system, created, report)
	}

	if report.Archived() {
		return ActionArchive, "", s.dispatcher.Archive(ctx, system, id, report)
	}
	return ActionUpdate, "", s.dispatcher.Update(ctx, system, id, report)
}
