package notify

import (
	"context"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/logger"
	"go.uber.org/zap"
)

// LogSender writes reset messages to zap instead of delivering them. The link
// carries a live token and is only logged at debug level.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender on a child of log named "mail".
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log.Named("mail")}
}

// SendPasswordReset implements Sender.
func (s *LogSender) SendPasswordReset(ctx context.Context, msg libauth.PasswordResetMessage) error {
	l := logger.WithContext(ctx, s.logger)
	l.Info("password reset message",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.Int("expiry_minutes", msg.ExpiryMinutes),
	)
	l.Debug("password reset link", zap.String("link", msg.Link))
	return nil
}
