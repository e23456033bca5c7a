package api

import (
	"net/http"
	"time"

	"PriceWatch/internal/domain/models"
	"PriceWatch/internal/domain/service"
	xhttp "PriceWatch/pkg/http"
	"PriceWatch/pkg/http/middleware"
	xlogger "PriceWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsEchoHandler serves the alert and live-alerts API.
type AlertsEchoHandler struct {
	logger    *xlogger.Logger
	alerts    service.AlertService
	rateLimit echo.MiddlewareFunc
}

type HandlerOption func(*AlertsEchoHandler)

// WithRateLimit guards mutating routes.
func WithRateLimit(cfg middleware.RateLimitConfig) HandlerOption {
	return func(h *AlertsEchoHandler) { h.rateLimit = middleware.RateLimit(cfg) }
}

func NewAlertsEchoHandler(logger *xlogger.Logger, alerts service.AlertService, opts ...HandlerOption) *AlertsEchoHandler {
	h := &AlertsEchoHandler{logger: logger, alerts: alerts}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	var guard []echo.MiddlewareFunc
	if h.rateLimit != nil {
		guard = append(guard, h.rateLimit)
	}

	g := e.Group("/api/alerts")
	g.POST("", h.Create, guard...)
	g.GET("", h.List)
	g.GET("/history", h.History)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete, guard...)

	live := e.Group("/api/live-alerts")
	live.GET("/status", h.Status)
	live.GET("/streams", h.Streams)
	live.GET("/performance", h.Performance)
	live.POST("/start-monitoring", h.StartMonitoring, guard...)
	live.POST("/stop-monitoring", h.StopMonitoring, guard...)
	live.POST("/stream/:symbol/start", h.StartStream, guard...)
	live.POST("/stream/:symbol/stop", h.StopStream, guard...)
}

func (h *AlertsEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *AlertsEchoHandler) Create(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return h.fail(c, "create alert", err)
	}
	threshold, err := models.ParseThreshold(string(req.Threshold))
	if err != nil {
		return h.fail(c, "create alert", err)
	}
	oneShot := true
	if req.OneShot != nil {
		oneShot = *req.OneShot
	}

	cond, err := h.alerts.CreateAlert(c.Request().Context(), models.CreateConditionInput{
		Owner:       req.Owner,
		Symbol:      req.Symbol,
		Kind:        kind,
		Threshold:   threshold,
		Description: req.Description,
		OneShot:     oneShot,
	})
	if err != nil {
		return h.fail(c, "create alert", err)
	}
	return xhttp.CreatedResponse(c, cond)
}

func (h *AlertsEchoHandler) List(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.alerts.ListAlerts(req.Owner)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AlertsEchoHandler) Get(c echo.Context) error {
	cond, err := h.alerts.GetAlert(c.Param("id"))
	if err != nil {
		return h.fail(c, "get alert", err)
	}
	return xhttp.SuccessResponse(c, cond)
}

func (h *AlertsEchoHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	ok, err := h.alerts.DeleteAlert(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "delete alert", err)
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", id))
	}
	return xhttp.SuccessResponse(c, map[string]bool{"deleted": true})
}

func (h *AlertsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := parseOptionalTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.FieldError("ERR_INVALID_RANGE", "from", "from must be RFC3339 or unix time"))
	}
	to, ok := parseOptionalTime(req.To)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.FieldError("ERR_INVALID_RANGE", "to", "to must be RFC3339 or unix time"))
	}

	events, err := h.alerts.History(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		return h.fail(c, "alert history", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *AlertsEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.alerts.GetStatus())
}

func (h *AlertsEchoHandler) Streams(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.alerts.Streams())
}

func (h *AlertsEchoHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.alerts.Performance(c.Request().Context()))
}

func (h *AlertsEchoHandler) StartMonitoring(c echo.Context) error {
	changed, err := h.alerts.StartMonitoring(c.Request().Context())
	if err != nil {
		return h.fail(c, "start monitoring", err)
	}
	return statusResponse(c, changed, "started", "already_running")
}

func (h *AlertsEchoHandler) StopMonitoring(c echo.Context) error {
	changed, err := h.alerts.StopMonitoring(c.Request().Context())
	if err != nil {
		return h.fail(c, "stop monitoring", err)
	}
	return statusResponse(c, changed, "stopped", "already_stopped")
}

func (h *AlertsEchoHandler) StartStream(c echo.Context) error {
	changed, err := h.alerts.StartSymbol(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.fail(c, "start stream", err)
	}
	return statusResponse(c, changed, "started", "already_active")
}

func (h *AlertsEchoHandler) StopStream(c echo.Context) error {
	changed, err := h.alerts.StopSymbol(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.fail(c, "stop stream", err)
	}
	return statusResponse(c, changed, "stopped", "not_active")
}

func statusResponse(c echo.Context, changed bool, yes, no string) error {
	status := no
	if changed {
		status = yes
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": status})
}

// parseOptionalTime treats an empty value as unset.
func parseOptionalTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	return xhttp.ParseTime(s)
}
