package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/domain/notifications"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/jobs"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/metrics"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/scheduler"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

type orderCounter interface {
	CountUnprocessed(ctx context.Context, db bun.IDB) (int, error)
}

type pendingCounter interface {
	Systems() []string
	CountPending(ctx context.Context, db bun.IDB) ([]notifications.PendingCount, error)
}

type taskLister interface {
	GetTaskInfo() []scheduler.TaskInfo
}

// Loop is a background loop reported by the status endpoint.
type Loop interface {
	Metrics() jobs.LoopMetrics
	IsRunning() bool
}

// OpsHandler pauses and resumes background processing and reports on it.
type OpsHandler struct {
	status        *jobs.RunStatus
	db            bun.IDB
	orders        orderCounter
	notifications pendingCounter
	tasks         taskLister
	loops         map[string]Loop
	log           *slog.Logger
}

func newOpsHandler(status *jobs.RunStatus, db bun.IDB, orders orderCounter, notifications pendingCounter,
	tasks taskLister, loops map[string]Loop, log *slog.Logger) *OpsHandler {
	return &OpsHandler{
		status:        status,
		db:            db,
		orders:        orders,
		notifications: notifications,
		tasks:         tasks,
		loops:         loops,
		log:           log.With(logger.Scope("ops")),
	}
}

// ProcessingResponse is returned by the disable and enable endpoints.
type ProcessingResponse struct {
	Disabled bool `json:"disabled"`
}

// Disable pauses the processor and notification loops. Loops finish the
// unit of work in progress.
func (h *OpsHandler) Disable(c echo.Context) error {
	h.status.Disable()
	metrics.ProcessingDisabled.Set(1)
	h.log.Warn("processing disabled", slog.String("request_id", requestID(c)))
	return c.JSON(http.StatusOK, ProcessingResponse{Disabled: true})
}

// Enable resumes processing.
func (h *OpsHandler) Enable(c echo.Context) error {
	h.status.Enable()
	metrics.ProcessingDisabled.Set(0)
	h.log.Info("processing enabled", slog.String("request_id", requestID(c)))
	return c.JSON(http.StatusOK, ProcessingResponse{Disabled: false})
}

// LoopStatus is the state of one background loop.
type LoopStatus struct {
	Running bool `json:"running"`
	jobs.LoopMetrics
}

// StatusResponse is the body of GET /internal/status.
type StatusResponse struct {
	Timestamp            string                `json:"timestamp"`
	Disabled             bool                  `json:"disabled"`
	Stopping             bool                  `json:"stopping"`
	UnprocessedOrders    int                   `json:"unprocessedOrders"`
	PendingNotifications map[string]int        `json:"pendingNotifications"`
	Loops                map[string]LoopStatus `json:"loops"`
	Tasks                []scheduler.TaskInfo  `json:"tasks"`
}

// Status reports the flags, backlog sizes and loop counters. It also
// refreshes the pending notifications gauge.
func (h *OpsHandler) Status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	unprocessed, err := h.orders.CountUnprocessed(ctx, h.db)
	if err != nil {
		return err
	}

	counts, err := h.notifications.CountPending(ctx, h.db)
	if err != nil {
		return err
	}
	pending := make(map[string]int)
	for _, system := range h.notifications.Systems() {
		pending[system] = 0
	}
	for _, pc := range counts {
		pending[pc.System] = pc.Count
	}
	for system, n := range pending {
		metrics.NotificationsPending.WithLabelValues(system).Set(float64(n))
	}

	loops := make(map[string]LoopStatus, len(h.loops))
	for name, l := range h.loops {
		loops[name] = LoopStatus{Running: l.IsRunning(), LoopMetrics: l.Metrics()}
	}

	tasks := []scheduler.TaskInfo{}
	if h.tasks != nil {
		tasks = h.tasks.GetTaskInfo()
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		Disabled:             h.status.Disabled(),
		Stopping:             !h.status.Alive(),
		UnprocessedOrders:    unprocessed,
		PendingNotifications: pending,
		Loops:                loops,
		Tasks:                tasks,
	})
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
