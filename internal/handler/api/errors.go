package api

import (
	"errors"

	"PriceWatch/internal/domain/models"
	xhttp "PriceWatch/pkg/http"
)

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidSymbol):
		return xhttp.FieldError("ERR_INVALID_SYMBOL", "symbol", err.Error())
	case errors.Is(err, models.ErrInvalidThreshold):
		return xhttp.FieldError("ERR_INVALID_THRESHOLD", "threshold", err.Error())
	case errors.Is(err, models.ErrInvalidKind):
		return xhttp.FieldError("ERR_INVALID_KIND", "kind", err.Error())
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.FieldError("ERR_INVALID_RANGE", "from", err.Error())
	case errors.Is(err, models.ErrMonitoringInactive):
		return xhttp.NewAppError("ERR_MONITORING_INACTIVE", "", err.Error(), 400)
	case errors.Is(err, models.ErrConditionNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrUpstreamFetch), errors.Is(err, models.ErrUpstreamPermanent):
		return xhttp.BadGatewayError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrHistoryUnavailable):
		return xhttp.ServiceUnavailableError(err.Error())
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
