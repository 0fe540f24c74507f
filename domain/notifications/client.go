package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/reports"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/tracing"
)

// Dispatcher performs the downstream calls for one system.
type Dispatcher interface {
	// Create registers a new report downstream and returns its correlation id.
	Create(ctx context.Context, system string, report *reports.Report) (string, error)
	// Update replaces the downstream resource identified by id.
	Update(ctx context.Context, system, id string, report *reports.Report) error
	// Archive marks the downstream resource identified by id as archived.
	Archive(ctx context.Context, system, id string, report *reports.Report) error
}

// reportMessage is the body sent to notification systems.
type reportMessage struct {
	ReportID   string     `json:"reportId"`
	OrderID    string     `json:"orderId"`
	OrgNumber  string     `json:"orgNumber"`
	Type       string     `json:"type"`
	ValueDate  string     `json:"valueDate"`
	CreatedAt  time.Time  `json:"createdAt"`
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

type target struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// HTTPDispatcher calls notification systems over HTTP. Each system has its
// own rate limiter and every request carries the configured timeout.
type HTTPDispatcher struct {
	targets map[string]*target
	log     *slog.Logger
}

// NewHTTPDispatcher creates a dispatcher for NOTIFIER_SYSTEMS.
func NewHTTPDispatcher(cfg *config.Config, log *slog.Logger) (*HTTPDispatcher, error) {
	targets, err := cfg.Notifier.Targets()
	if err != nil {
		return nil, err
	}
	return newHTTPDispatcher(targets, cfg.Notifier.Timeout, rate.Limit(cfg.Notifier.RateLimit), cfg.Notifier.RateBurst, log), nil
}

func newHTTPDispatcher(targets []config.Target, timeout time.Duration, limit rate.Limit, burst int, log *slog.Logger) *HTTPDispatcher {
	if burst < 1 {
		burst = 1
	}
	d := &HTTPDispatcher{
		targets: make(map[string]*target, len(targets)),
		log:     log.With(logger.Scope("notifications.http")),
	}
	for _, t := range targets {
		d.targets[t.Name] = &target{
			client: resty.New().
				SetBaseURL(t.BaseURL).
				SetTimeout(timeout).
				SetHeader("Content-Type", "application/json").
				SetHeader("Accept", "application/json"),
			limiter: rate.NewLimiter(limit, burst),
		}
	}
	return d
}

func (d *HTTPDispatcher) request(ctx context.Context, system string) (*resty.Request, error) {
	t, ok := d.targets[system]
	if !ok {
		return nil, apperror.NewDownstream("notify", fmt.Errorf("unknown system %q", system))
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, apperror.NewDownstream("notify", fmt.Errorf("rate limit wait: %w", err))
	}
	return t.client.R().SetContext(ctx).SetHeaderMultiValues(tracing.Headers(ctx)), nil
}

func message(r *reports.Report) reportMessage {
	return reportMessage{
		ReportID:   r.ID,
		OrderID:    r.OrderID,
		OrgNumber:  r.OrgNumber,
		Type:       r.Type,
		ValueDate:  r.ValueDate.Format(time.DateOnly),
		CreatedAt:  r.CreatedAt,
		Archived:   r.Archived(),
		ArchivedAt: r.ArchivedAt,
	}
}

// IdempotencyKey identifies one report creation towards one system.
func IdempotencyKey(reportID, system string) string {
	return reportID + ":" + system
}

func (d *HTTPDispatcher) Create(ctx context.Context, system string, report *reports.Report) (string, error) {
	req, err := d.request(ctx, system)
	if err != nil {
		return "", err
	}
	resp, err := req.
		SetHeader("Idempotency-Key", IdempotencyKey(report.ID, system)).
		SetBody(message(report)).
		Post("/reports")
	if err := checkResponse("create report", resp, err); err != nil {
		return "", err
	}

	var out createResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.ID == "" {
		return "", apperror.NewDownstream("create report", fmt.Errorf("response has no id: %q", truncate(resp.String(), 200)))
	}

	d.log.Debug("report created downstream",
		slog.String("system", system),
		slog.String("report_id", report.ID),
		slog.String("correlation_id", out.ID))
	return out.ID, nil
}

func (d *HTTPDispatcher) Update(ctx context.Context, system, id string, report *reports.Report) error {
	req, err := d.request(ctx, system)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("id", id).
		SetBody(message(report)).
		Put("/reports/{id}")
	return checkResponse("update report", resp, err)
}

func (d *HTTPDispatcher) Archive(ctx context.Context, system, id string, report *reports.Report) error {
	req, err := d.request(ctx, system)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("id", id).
		SetBody(message(report)).
		Post("/reports/{id}/archive")
	return checkResponse("archive report", resp, err)
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return apperror.NewDownstream(op, err)
	}
	if resp.IsError() {
		return apperror.NewDownstream(op, fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
