package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the health, metrics and ops routes
func RegisterRoutes(e *echo.Echo, h *Handler, ops *OpsHandler) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	internal := e.Group("/internal")
	internal.POST("/processing/disable", ops.Disable)
	internal.POST("/processing/enable", ops.Enable)
	internal.GET("/status", ops.Status)
}
