package intake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/metrics"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/tracing"
)

type orderInserter interface {
	Insert(ctx context.Context, db bun.IDB, order *orders.Order) (string, bool, error)
}

// Service copies queue messages into the orders table. The database
// transaction commits before the queue batch does; a crash between the two
// redelivers the message and the insert is skipped as a duplicate.
type Service struct {
	consumer Consumer
	orders   orderInserter
	tx       database.Transactor
	status   *jobs.RunStatus
	pause    time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newService(consumer Consumer, orders orderInserter, tx database.Transactor, status *jobs.RunStatus, pause time.Duration, log *slog.Logger) *Service {
	return &Service{
		consumer: consumer,
		orders:   orders,
		tx:       tx,
		status:   status,
		pause:    pause,
		log:      log.With(logger.Scope("intake")),
	}
}

// Run receives messages until ctx is done or the process shuts down.
func (s *Service) Run(ctx context.Context) {
	for s.status.Alive() && ctx.Err() == nil {
		if err := s.ReceiveOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("intake failed, retrying", logger.Error(err))
			if !sleep(ctx, s.pause) {
				return
			}
		}
	}
}

// ReceiveOne handles at most one message. On error both the database
// transaction and the queue batch have been rolled back.
func (s *Service) ReceiveOne(ctx context.Context) (err error) {
	msg, err := s.consumer.Receive(ctx)
	if err != nil {
		metrics.MessagesReceived.WithLabelValues(metrics.OutcomeFailure).Inc()
		return errors.Join(err, s.consumer.Rollback(ctx))
	}
	if msg == nil {
		metrics.MessagesReceived.WithLabelValues(metrics.OutcomeIdle).Inc()
		return nil
	}

	// Empty polls are not traced.
	ctx, span := tracing.Start(ctx, "intake.receive_order",
		tracing.MessageID.String(msg.ID),
		attribute.String("oppgjor.queue.source", msg.Source),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	var id string
	var inserted bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		var err error
		id, inserted, err = s.orders.Insert(ctx, tx, &orders.Order{
			Source:    msg.Source,
			MessageID: msg.ID,
			Payload:   msg.Body,
		})
		return err
	})
	if err != nil {
		metrics.MessagesReceived.WithLabelValues(metrics.OutcomeFailure).Inc()
		return errors.Join(err, s.consumer.Rollback(ctx))
	}

	if err := s.consumer.Commit(ctx); err != nil {
		metrics.MessagesReceived.WithLabelValues(metrics.OutcomeFailure).Inc()
		return errors.Join(err, s.consumer.Rollback(ctx))
	}

	metrics.MessagesReceived.WithLabelValues(metrics.OutcomeSuccess).Inc()
	span.SetAttributes(tracing.OrderID.String(id), attribute.Bool("oppgjor.queue.duplicate", !inserted))
	log := s.log.With(slog.String("message_id", msg.ID), slog.String("order_id", id))
	if inserted {
		log.Info("order received", slog.String("source", msg.Source))
	} else {
		log.Info("duplicate message skipped")
	}
	return nil
}

// Start runs the service in a goroutine.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.stopped)
}

// Stop cancels the running service and waits for it to exit or ctx to end.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn("intake stop timeout")
	}
	return s.consumer.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
