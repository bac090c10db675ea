package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	TemplateOrderConfirmed     = "order-confirmed"
	TemplateOrderStatusChanged = "order-status-changed"
	TemplateNewQuery           = "query-mail"
)

// Sender dispatches one templated message. Delivery is fire-and-forget for
// callers: a failure is logged, never retried by the order flow.
type Sender interface {
	Send(ctx context.Context, to, subject, template string, data map[string]any) error
}

// LogSender writes the message to the log instead of a mail transport.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, to, subject, template string, data map[string]any) error {
	fields := []zap.Field{
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("template", template),
	}
	for k, v := range data {
		fields = append(fields, zap.Any("data."+strings.ToLower(k), v))
	}
	s.Log.Info("notification", fields...)
	return nil
}
