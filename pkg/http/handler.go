package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler defines HTTP route registration interface.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Handlers registers each non-nil handler in order.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

// opsHandler serves /healthz and, when a gatherer is set, the Prometheus scrape route.
type opsHandler struct {
	health      map[string]HealthFunc
	metricsPath string
	gatherer    prometheus.Gatherer
}

func (h opsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
	if h.metricsPath != "" && h.gatherer != nil {
		e.GET(h.metricsPath, echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// healthz runs every check with a shared 2s budget; any failure turns the response into 503.
func (h opsHandler) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	report := make(map[string]string, len(h.health))
	healthy := true
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			healthy = false
			continue
		}
		report[name] = "ok"
	}
	if !healthy {
		return DataResponse(c, http.StatusServiceUnavailable, report)
	}
	return SuccessResponse(c, report)
}
