package processor

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/audit"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/orders"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/database"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/testutil"
)

type PipelineSuite struct {
	testutil.DBSuite
	orders        *orders.Store
	reports       *reports.Store
	audit         *audit.Log
	notifications *notifications.Store
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupSuite() {
	s.DBSuite.SetupSuite()
	log := slog.Default()
	s.orders = orders.NewStore(log)
	s.reports = reports.NewStore(log)
	s.audit = audit.NewLog(log)
	s.notifications = notifications.NewStoreForSystems([]string{"arkiv", "portal"}, log)
}

func (s *PipelineSuite) newProcessor() *Processor {
	return newProcessor(s.orders, s.reports, settlement.NewRegistry(),
		reports.NewGenerator(reports.CSVRenderer{}), s.audit, s.notifications,
		database.NewTransactor(s.DB()), slog.Default())
}

func (s *PipelineSuite) enqueue(messageID, payload string) string {
	id, _, err := s.orders.Insert(s.Ctx, s.DB(), &orders.Order{
		Source:    settlement.KindRefund,
		MessageID: messageID,
		Payload:   []byte(payload),
	})
	s.Require().NoError(err)
	return id
}

func (s *PipelineSuite) TestValidOrderProducesReport() {
	orderID := s.enqueue("msg-1", validOrder)

	res, err := s.newProcessor().ProcessNext(s.Ctx)
	s.Require().NoError(err)
	s.Equal(jobs.Done, res)

	order, err := s.orders.Get(s.Ctx, s.DB(), orderID)
	s.Require().NoError(err)
	s.True(order.Processed())

	report, err := s.reports.ForOrder(s.Ctx, s.DB(), orderID)
	s.Require().NoError(err)
	s.Equal("974600019", report.OrgNumber)
	s.Equal("2025-03-14", report.ValueDate.Format("2006-01-02"))

	variants, err := s.reports.Variants(s.Ctx, s.DB(), report.ID)
	s.Require().NoError(err)
	s.Require().Len(variants, 1)
	s.Equal("refusjon_974600019_2025-03-14.csv", variants[0].Filename)

	events, err := s.audit.ForReport(s.Ctx, s.DB(), report.ID)
	s.Require().NoError(err)
	s.Len(events, 2)

	pending, err := s.notifications.ForReport(s.Ctx, s.DB(), report.ID)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	for _, req := range pending {
		s.Zero(req.AttemptCount, req.System)
		s.Nil(req.LastError, req.System)
	}
}

func (s *PipelineSuite) TestInvalidOrderLeavesNoTrace() {
	orderID := s.enqueue("msg-1", mismatchedOrder)

	res, err := s.newProcessor().ProcessNext(s.Ctx)
	s.Error(err)
	s.Equal(jobs.Failed, res)

	order, err := s.orders.Get(s.Ctx, s.DB(), orderID)
	s.Require().NoError(err)
	s.False(order.Processed())

	report, err := s.reports.ForOrder(s.Ctx, s.DB(), orderID)
	s.Require().NoError(err)
	s.Nil(report)

	n, err := s.DB().NewSelect().Table("audit_log").Count(s.Ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PipelineSuite) TestConcurrentProcessorsCreateOneReportPerOrder() {
	const count = 6
	for i := 0; i < count; i++ {
		s.enqueue("msg-"+string(rune('a'+i)), validOrder)
	}

	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := s.newProcessor()
			for {
				res, err := p.ProcessNext(s.Ctx)
				if err != nil || res == jobs.Idle {
					return
				}
			}
		}()
	}
	wg.Wait()

	n, err := s.orders.CountUnprocessed(s.Ctx, s.DB())
	s.Require().NoError(err)
	s.Zero(n)

	reportCount, err := s.DB().NewSelect().Table("reports").Count(s.Ctx)
	s.Require().NoError(err)
	s.Equal(count, reportCount)
}

func (s *PipelineSuite) TestVariantsAreImmutable() {
	s.enqueue("msg-1", validOrder)
	_, err := s.newProcessor().ProcessNext(s.Ctx)
	s.Require().NoError(err)

	_, err = s.DB().ExecContext(s.Ctx, "UPDATE variants SET filename = 'changed'")
	s.Error(err)
	_, err = s.DB().ExecContext(s.Ctx, "DELETE FROM audit_log")
	s.Error(err)
}
