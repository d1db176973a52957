package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes reminders to the application log. Used in development and
// as the fallback channel when no provider is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Name identifies the sender.
func (s *LogSender) Name() string { return "log" }

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("payment reminder",
		zap.String("message_id", msg.ID),
		zap.String("payment_id", msg.PaymentID),
		zap.String("channel", msg.Channel),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
