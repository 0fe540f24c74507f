// Package archive marks old reports as archived, copies their variants to
// object storage and tells downstream systems.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/metrics"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/storage"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

type reportStore interface {
	ClaimArchivable(ctx context.Context, tx bun.IDB, cutoff time.Time) (*reports.Report, error)
	Variants(ctx context.Context, db bun.IDB, reportID string) ([]reports.Variant, error)
	MarkArchived(ctx context.Context, tx bun.IDB, id string, at time.Time) (bool, error)
}

type uploader interface {
	Enabled() bool
	Upload(ctx context.Context, obj storage.Object) (*storage.UploadResult, error)
}

type auditLog interface {
	Append(ctx context.Context, tx bun.IDB, e *audit.Event) error
}

type registrar interface {
	Register(ctx context.Context, tx bun.IDB, reportID string, now time.Time) ([]*notifications.Request, error)
}

// Archiver archives reports older than a fixed age.
type Archiver struct {
	reports reportStore
	storage uploader
	audit   auditLog
	notify  registrar
	tx      database.Transactor
	after   time.Duration
	batch   int
	now     func() time.Time
	log     *slog.Logger
}

func newArchiver(reports reportStore, storage uploader, audit auditLog, notify registrar,
	tx database.Transactor, after time.Duration, batch int, log *slog.Logger) *Archiver {
	if batch < 1 {
		batch = 1
	}
	return &Archiver{
		reports: reports,
		storage: storage,
		audit:   audit,
		notify:  notify,
		tx:      tx,
		after:   after,
		batch:   batch,
		now:     time.Now,
		log:     log.With(logger.Scope("archive")),
	}
}

// Run archives up to one batch of reports, one transaction each. It stops
// at the first failure.
func (a *Archiver) Run(ctx context.Context) error {
	n := 0
	defer func() {
		if n > 0 {
			a.log.Info("reports archived", slog.Int("count", n))
		}
	}()

	for n < a.batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		archived, err := a.ArchiveNext(ctx)
		if err != nil {
			return err
		}
		if !archived {
			return nil
		}
		n++
	}
	return nil
}

// ArchiveNext archives the oldest eligible report. It returns false when
// there is none.
func (a *Archiver) ArchiveNext(ctx context.Context) (bool, error) {
	var report *reports.Report
	err := a.tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := a.now()
		var err error
		report, err = a.reports.ClaimArchivable(ctx, tx, now.Add(-a.after))
		if err != nil || report == nil {
			return err
		}
		return a.archive(ctx, tx, report, now)
	})
	if err != nil {
		if report != nil {
			return false, fmt.Errorf("archive report %s: %w", report.ID, err)
		}
		return false, err
	}
	if report == nil {
		return false, nil
	}

	metrics.ReportsArchived.Inc()
	return true, nil
}

func (a *Archiver) archive(ctx context.Context, tx bun.IDB, report *reports.Report, now time.Time) error {
	copied := 0
	if a.storage.Enabled() {
		variants, err := a.reports.Variants(ctx, tx, report.ID)
		if err != nil {
			return err
		}
		for _, v := range variants {
			_, err := a.storage.Upload(ctx, storage.Object{
				Key:         storage.Key(report.Type, report.OrgNumber, report.ID, v.Filename),
				Content:     v.Content,
				ContentType: storage.ContentType(v.Format),
				Metadata: map[string]string{
					"report-id":  report.ID,
					"variant-id": v.ID,
				},
			})
			if err != nil {
				return apperror.NewDownstream("copy variant to storage", err)
			}
			copied++
		}
	}

	ok, err := a.reports.MarkArchived(ctx, tx, report.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrConflict.WithMessage("report " + report.ID + " already archived")
	}

	if err := a.audit.Append(ctx, tx, &audit.Event{
		ReportID: report.ID,
		Kind:     audit.KindReportArchived,
		Actor:    audit.ActorArchiver,
		Note:     audit.Note(fmt.Sprintf("variants copied: %d", copied)),
	}); err != nil {
		return err
	}

	if _, err := a.notify.Register(ctx, tx, report.ID, now); err != nil {
		return err
	}

	a.log.Debug("report archived",
		slog.String("report_id", report.ID),
		slog.Int("variants_copied", copied))
	return nil
}
