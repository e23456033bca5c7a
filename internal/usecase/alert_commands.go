package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	"PriceWatch/internal/domain/service"
	pkgkafka "PriceWatch/pkg/kafka"
	"PriceWatch/pkg/logger"
)

// AlertCommand is the message bot command handlers publish to the commands topic.
type AlertCommand struct {
	Action      string        `json:"action"` // create, delete, start_monitoring, stop_monitoring
	ID          string        `json:"id,omitempty"`
	Owner       string        `json:"owner,omitempty"`
	Symbol      string        `json:"symbol,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	Threshold   models.Amount `json:"threshold,omitempty"`
	Description string        `json:"description,omitempty"`
	OneShot     *bool         `json:"one_shot,omitempty"`
}

// AlertCommandHandler applies alert commands consumed from Kafka or the Redis queue.
type AlertCommandHandler struct {
	topic   string
	alerts  service.AlertService
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewAlertCommandHandler(topic string, alerts service.AlertService, metrics domrepo.Metrics, log *logger.Logger) *AlertCommandHandler {
	return &AlertCommandHandler{topic: topic, alerts: alerts, metrics: metrics, log: log}
}

// AlertCommandType is the queue message type carrying an AlertCommand.
const AlertCommandType = "alert_command"

func (h *AlertCommandHandler) Topic() string { return h.topic }

// Type lets the handler serve as a Redis queue job.
func (h *AlertCommandHandler) Type() string { return AlertCommandType }

// Handle applies one command. Malformed or invalid commands are permanent failures.
func (h *AlertCommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd AlertCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode command: %w", err))
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "create":
		return h.create(ctx, cmd)
	case "delete":
		if cmd.ID == "" {
			return pkgkafka.Permanent(errors.New("delete command without id"))
		}
		ok, err := h.alerts.DeleteAlert(ctx, cmd.ID)
		if err != nil {
			h.metrics.RecordError("command_delete")
			return fmt.Errorf("delete alert %s: %w", cmd.ID, err)
		}
		h.log.Info("command applied", logger.String("action", "delete"), logger.String("id", cmd.ID), logger.Bool("deleted", ok))
		return nil
	case "start_monitoring":
		_, err := h.alerts.StartMonitoring(ctx)
		return err
	case "stop_monitoring":
		_, err := h.alerts.StopMonitoring(ctx)
		return err
	default:
		h.metrics.RecordError("command_unknown")
		return pkgkafka.Permanent(fmt.Errorf("unknown action %q", cmd.Action))
	}
}

func (h *AlertCommandHandler) create(ctx context.Context, cmd AlertCommand) error {
	kindName := cmd.Kind
	if kindName == "" {
		kindName = string(models.KindPriceAbove)
	}
	kind, err := models.ParseKind(kindName)
	if err != nil {
		return pkgkafka.Permanent(err)
	}
	threshold, err := models.ParseThreshold(string(cmd.Threshold))
	if err != nil {
		return pkgkafka.Permanent(err)
	}
	owner := cmd.Owner
	if owner == "" {
		owner = "bot"
	}
	oneShot := true
	if cmd.OneShot != nil {
		oneShot = *cmd.OneShot
	}

	c, err := h.alerts.CreateAlert(ctx, models.CreateConditionInput{
		Owner:       owner,
		Symbol:      cmd.Symbol,
		Kind:        kind,
		Threshold:   threshold,
		Description: cmd.Description,
		OneShot:     oneShot,
	})
	if err != nil {
		if isValidation(err) {
			return pkgkafka.Permanent(err)
		}
		h.metrics.RecordError("command_create")
		return fmt.Errorf("create alert: %w", err)
	}
	h.log.Info("command applied", logger.String("action", "create"), logger.String("id", c.ID), logger.String("symbol", c.Symbol))
	return nil
}

func isValidation(err error) bool {
	return errors.Is(err, models.ErrInvalidSymbol) ||
		errors.Is(err, models.ErrInvalidThreshold) ||
		errors.Is(err, models.ErrInvalidKind)
}

var _ pkgkafka.MessageHandler = (*AlertCommandHandler)(nil)
