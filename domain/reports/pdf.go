package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/settlement"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/tracing"
)

// PDFClient renders reports with the external PDF generator.
type PDFClient struct {
	client   *resty.Client
	template string
	log      *slog.Logger
}

// NewPDFClient creates a PDF generator client.
func NewPDFClient(cfg *config.Config, log *slog.Logger) *PDFClient {
	return newPDFClient(cfg.ContentGenerator.URL, cfg.ContentGenerator.Template, cfg.ContentGenerator.Timeout, log)
}

func newPDFClient(baseURL, template string, timeout time.Duration, log *slog.Logger) *PDFClient {
	return &PDFClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/pdf"),
		template: template,
		log:      log.With(logger.Scope("reports.pdf")),
	}
}

// pdfDocument is the payload sent to the generator template.
type pdfDocument struct {
	ReportID    string    `json:"reportId"`
	Type        string    `json:"type"`
	OrgNumber   string    `json:"orgNumber"`
	BankAccount string    `json:"bankAccount"`
	ValueDate   string    `json:"valueDate"`
	TotalAmount string    `json:"totalAmount"`
	Lines       []pdfLine `json:"lines"`
}

type pdfLine struct {
	OrgSubUnit   string `json:"orgSubUnit"`
	PersonID     string `json:"personId"`
	Amount       string `json:"amount"`
	PeriodFrom   string `json:"periodFrom"`
	PeriodTo     string `json:"periodTo"`
	CategoryCode string `json:"categoryCode"`
}

func (c *PDFClient) Format() string { return FormatPDF }

// Render posts the settlement to the generator and returns the PDF bytes.
func (c *PDFClient) Render(ctx context.Context, report *Report, s *settlement.Settlement) (_ []byte, err error) {
	ctx, span := tracing.Start(ctx, "reports.render_pdf",
		tracing.ReportID.String(report.ID),
		attribute.String("oppgjor.pdf.template", c.template),
	)
	defer func() {
		tracing.Fail(span, err)
		span.End()
	}()

	doc := pdfDocument{
		ReportID:    report.ID,
		Type:        report.Type,
		OrgNumber:   s.OrgNumber,
		BankAccount: s.BankAccount,
		ValueDate:   s.ValueDate.Format(time.DateOnly),
		TotalAmount: s.Total.String(),
		Lines:       make([]pdfLine, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		doc.Lines = append(doc.Lines, pdfLine{
			OrgSubUnit:   l.OrgSubUnit,
			PersonID:     l.PersonID,
			Amount:       l.Amount.String(),
			PeriodFrom:   l.PeriodFrom.Format(time.DateOnly),
			PeriodTo:     l.PeriodTo.Format(time.DateOnly),
			CategoryCode: l.CategoryCode,
		})
	}

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(tracing.Headers(ctx)).
		SetHeader("Content-Type", "application/json").
		SetPathParam("template", c.template).
		SetBody(doc).
		Post("/api/v1/genpdf/{template}")
	if err != nil {
		return nil, apperror.NewDownstream("render pdf", err)
	}
	if resp.IsError() {
		return nil, apperror.NewDownstream("render pdf",
			fmt.Errorf("generator returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
	if len(resp.Body()) == 0 {
		return nil, apperror.NewDownstream("render pdf", fmt.Errorf("generator returned an empty body"))
	}

	span.SetAttributes(attribute.Int("oppgjor.pdf.bytes", len(resp.Body())))
	c.log.Debug("pdf rendered",
		slog.String("report_id", report.ID),
		slog.Int("bytes", len(resp.Body())),
		slog.Duration("duration", time.Since(start)))
	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
