package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes emails to the log instead of sending them. Used for dev environments.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("Email (not sent)",
		zap.String("from", email.From),
		zap.Strings("to", email.To),
		zap.Strings("bcc", email.Bcc),
		zap.Strings("reply_to", email.ReplyTo),
		zap.String("subject", email.Subject))
	m.logger.Debug("Email body", zap.String("body", email.Body))
	return nil
}
