package notification

import (
	"context"
	"fmt"
	"strings"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/logger"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Dispatcher delivers a message. Implementations must not retry on their own.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// LogDispatcher only logs what would have been sent.
type LogDispatcher struct {
	Logger *logger.Logger
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	d.Logger.Info("EMAIL", fmt.Sprintf("to=%s subject=%q attachments=[%s] (delivery disabled)",
		msg.To, msg.Subject, strings.Join(names, ",")))
	return nil
}

// NewDispatcher returns SMTP delivery when enabled, logging otherwise.
func NewDispatcher(cfg config.EmailConfig, log *logger.Logger) Dispatcher {
	if !cfg.Enabled {
		return &LogDispatcher{Logger: log}
	}
	return NewSMTPDispatcher(cfg)
}
