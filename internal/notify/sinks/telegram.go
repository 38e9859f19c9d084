package sinks

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSink delivers events as Telegram bot messages.
type TelegramSink struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramSink creates a sink posting to the given bot token and chat.
func NewTelegramSink(token, chatID string) (*TelegramSink, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	client := resty.New().
		SetBaseURL(telegramAPIBase).
		SetTimeout(5 * time.Second)
	return &TelegramSink{client: client, token: token, chatID: chatID}, nil
}

// newTelegramSinkWithBaseURL exists for httptest servers.
func newTelegramSinkWithBaseURL(baseURL, token, chatID string) *TelegramSink {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)
	return &TelegramSink{client: client, token: token, chatID: chatID}
}

// Send posts the event via the sendMessage API.
func (s *TelegramSink) Send(ctx context.Context, evt monitor.Event) error {
	text := fmt.Sprintf("<b>%s</b>", html.EscapeString(evt.Title))
	if evt.Message != "" {
		text += "\n" + html.EscapeString(evt.Message)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    s.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.token))
	if err != nil {
		return fmt.Errorf("%w: telegram send: %v", monitor.ErrDelivery, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: telegram send: status %s", monitor.ErrDelivery, resp.Status())
	}
	return nil
}
