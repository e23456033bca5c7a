package service

import (
	"context"
	"time"

	"PriceWatch/internal/domain/models"
)

// AlertService is what outer surfaces (HTTP routes, bot command consumers) call.
type AlertService interface {
	CreateAlert(ctx context.Context, in models.CreateConditionInput) (*models.Condition, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	GetAlert(id string) (models.Condition, error)
	ListAlerts(owner string) []models.Condition

	GetStatus() models.EngineStatus
	Streams() []models.StreamSummary
	Performance(ctx context.Context) models.Performance
	History(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.TriggerEvent, error)

	StartMonitoring(ctx context.Context) (bool, error)
	StopMonitoring(ctx context.Context) (bool, error)
	StartSymbol(ctx context.Context, symbol string) (bool, error)
	StopSymbol(ctx context.Context, symbol string) (bool, error)
}
