package notify

import (
	"context"
	"errors"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	applogger "PriceWatch/pkg/logger"

	"go.uber.org/multierr"
)

var errNoSinks = errors.New("no notification sinks configured")

// MultiSink delivers to every sink. It succeeds if at least one sink does.
type MultiSink struct {
	sinks []domrepo.NotificationSink
}

func NewMultiSink(sinks ...domrepo.NotificationSink) *MultiSink {
	out := make([]domrepo.NotificationSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Send(ctx context.Context, text string) error {
	if len(m.sinks) == 0 {
		return models.NotificationDeliveryFailed(errNoSinks)
	}
	var errs error
	delivered := false
	for _, s := range m.sinks {
		if err := s.Send(ctx, text); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return models.NotificationDeliveryFailed(errs)
}

// LogSink writes alerts to the application log. It never fails.
type LogSink struct {
	l *applogger.Logger
}

func NewLogSink(l *applogger.Logger) *LogSink { return &LogSink{l: l} }

func (s *LogSink) Send(_ context.Context, text string) error {
	s.l.Info("alert notification", applogger.String("text", text))
	return nil
}

var (
	_ domrepo.NotificationSink = (*MultiSink)(nil)
	_ domrepo.NotificationSink = (*LogSink)(nil)
)
