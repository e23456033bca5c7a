package usecase

import (
	"context"
	"testing"

	"PriceWatch/internal/domain/models"
	pkgkafka "PriceWatch/pkg/kafka"
	"PriceWatch/pkg/logger"
	"PriceWatch/pkg/metrics"

	"github.com/stretchr/testify/require"
)

func TestAlertCommandHandler(t *testing.T) {
	h := newHarness(t, newScriptFeed().prices("BTCUSDT", "1"))
	handler := NewAlertCommandHandler("alert-commands", h.engine, metrics.Nop{}, logger.Nop())
	ctx := context.Background()
	require.Equal(t, "alert-commands", handler.Topic())
	require.Equal(t, AlertCommandType, handler.Type())

	require.NoError(t, handler.Handle(ctx, []byte(`{"action":"create","symbol":"btcusdt","threshold":"50000"}`)))
	alerts := h.engine.ListAlerts("")
	require.Len(t, alerts, 1)
	require.Equal(t, "bot", alerts[0].Owner)
	require.Equal(t, "BTCUSDT", alerts[0].Symbol)
	require.Equal(t, models.KindPriceAbove, alerts[0].Kind)
	require.True(t, alerts[0].OneShot)

	require.NoError(t, handler.Handle(ctx, []byte(`{"action":"create","owner":"42","symbol":"ETHUSDT","kind":"below","threshold":2500.5,"one_shot":false}`)))
	mine := h.engine.ListAlerts("42")
	require.Len(t, mine, 1)
	require.Equal(t, models.KindPriceBelow, mine[0].Kind)
	require.False(t, mine[0].OneShot)
	require.Equal(t, "2500.5", mine[0].Threshold.String())

	require.NoError(t, handler.Handle(ctx, []byte(`{"action":"start_monitoring"}`)))
	require.True(t, h.engine.IsMonitoring())
	require.NoError(t, handler.Handle(ctx, []byte(`{"action":"stop_monitoring"}`)))
	require.False(t, h.engine.IsMonitoring())

	require.NoError(t, handler.Handle(ctx, []byte(`{"action":"delete","id":"`+alerts[0].ID+`"}`)))
	require.Len(t, h.engine.ListAlerts(""), 1)
}

func TestAlertCommandHandlerRejectsBadCommands(t *testing.T) {
	h := newHarness(t, newScriptFeed())
	handler := NewAlertCommandHandler("alert-commands", h.engine, metrics.Nop{}, logger.Nop())
	ctx := context.Background()

	for name, payload := range map[string]string{
		"not json":       `{"action":`,
		"unknown action": `{"action":"explode"}`,
		"delete no id":   `{"action":"delete"}`,
		"bad threshold":  `{"action":"create","symbol":"BTCUSDT","threshold":"abc"}`,
		"zero threshold": `{"action":"create","symbol":"BTCUSDT","threshold":"0"}`,
		"bad kind":       `{"action":"create","symbol":"BTCUSDT","kind":"sideways","threshold":"1"}`,
		"bad symbol":     `{"action":"create","symbol":"BTC/USDT","threshold":"1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := handler.Handle(ctx, []byte(payload))
			require.Error(t, err)
			require.True(t, pkgkafka.IsPermanent(err), "got %v", err)
		})
	}
	require.Empty(t, h.engine.ListAlerts(""))
}
