package transport

import (
	"context"

	"go.uber.org/zap"
)

// maxOperatorTextLen bounds raw error text forwarded to the operator channel.
const maxOperatorTextLen = 1000

// Operator forwards raw failure detail to the operator channel. With no
// channel configured it degrades to logging only.
type Operator struct {
	messenger Messenger
	chatID    int64
	logger    *zap.Logger
}

// NewOperator creates the operator notifier. chatID 0 disables sending.
func NewOperator(messenger Messenger, chatID int64, logger *zap.Logger) *Operator {
	return &Operator{messenger: messenger, chatID: chatID, logger: logger}
}

// Notify sends text to the operator channel, truncated to a safe length.
// Failures are logged and swallowed; operator reporting must never break the
// path that called it.
func (o *Operator) Notify(ctx context.Context, text string) {
	if len(text) > maxOperatorTextLen {
		text = text[:maxOperatorTextLen]
	}
	if o.chatID == 0 {
		o.logger.Debug("operator channel not configured", zap.String("text", text))
		return
	}
	if _, err := o.messenger.SendText(ctx, o.chatID, text); err != nil {
		o.logger.Error("failed to notify operator", zap.Error(err))
	}
}
