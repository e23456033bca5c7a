package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"PriceWatch/internal/domain/models"
	domrepo "PriceWatch/internal/domain/repository"
	apphttp "PriceWatch/pkg/http"
	applogger "PriceWatch/pkg/logger"
	"PriceWatch/pkg/util"
)

// Telegram rejects messages longer than this.
const maxMessageRunes = 4096

var ErrNotConfigured = errors.New("telegram not configured")

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Sink posts alert messages to one chat through the Bot API.
type Sink struct {
	apiURL string
	token  string
	chatID string
	client *apphttp.Client
	l      *applogger.Logger
}

type Option func(*Sink)

// WithClient replaces the default HTTP client.
func WithClient(c *apphttp.Client) Option {
	return func(s *Sink) { s.client = c }
}

func NewSink(apiURL, token, chatID string, l *applogger.Logger, opts ...Option) *Sink {
	s := &Sink{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: apphttp.NewClient(apphttp.WithTimeout(10 * time.Second)),
		l:      l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether both token and chat id are set.
func (s *Sink) Configured() bool { return s.token != "" && s.chatID != "" }

// Send delivers text once. Every failure wraps models.ErrNotificationDelivery.
func (s *Sink) Send(ctx context.Context, text string) error {
	if !s.Configured() {
		return models.NotificationDeliveryFailed(ErrNotConfigured)
	}

	var resp sendMessageResponse
	err := s.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.token),
		Body: sendMessageRequest{
			ChatID:                s.chatID,
			Text:                  util.Truncate(text, maxMessageRunes),
			DisableWebPagePreview: true,
		},
	}, &resp)
	if err != nil {
		err = s.redact(err)
		s.l.Warn("telegram send failed",
			applogger.String("chat_id", s.chatID),
			applogger.String("token", util.Mask(s.token, 4)),
			applogger.Error(err),
		)
		return models.NotificationDeliveryFailed(err)
	}
	if !resp.OK {
		return models.NotificationDeliveryFailed(fmt.Errorf("telegram rejected message: %s", resp.Description))
	}
	return nil
}

// redact strips the request URL, which carries the bot token, from transport errors.
func (s *Sink) redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = fmt.Errorf("telegram %s sendMessage: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	if s.token == "" || !strings.Contains(err.Error(), s.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), s.token, util.Mask(s.token, 4)))
}

var _ domrepo.NotificationSink = (*Sink)(nil)
