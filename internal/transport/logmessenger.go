package transport

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// LogMessenger is a Messenger that writes everything to the log. It backs
// headless runs of the core (development, ops-only deployments) where no chat
// adapter is attached; a real adapter replaces it at wiring time.
type LogMessenger struct {
	logger *zap.Logger
	nextID atomic.Int64
}

// NewLogMessenger creates a log-backed messenger.
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

var _ Messenger = (*LogMessenger)(nil)

func (m *LogMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	id := int(m.nextID.Add(1))
	m.logger.Info("send text", zap.Int64("chat_id", chatID), zap.Int("message_id", id), zap.String("text", text))
	return id, nil
}

func (m *LogMessenger) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	m.logger.Info("edit text", zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.String("text", text))
	return nil
}

func (m *LogMessenger) SendFile(_ context.Context, chatID int64, filePath, caption string, audio bool) error {
	m.logger.Info("send file", zap.Int64("chat_id", chatID), zap.String("path", filePath),
		zap.String("caption", caption), zap.Bool("audio", audio))
	return nil
}

func (m *LogMessenger) SendChoices(_ context.Context, chatID int64, text string, choices []Choice) error {
	labels := make([]string, 0, len(choices))
	for _, c := range choices {
		labels = append(labels, c.Label)
	}
	m.logger.Info("send choices", zap.Int64("chat_id", chatID), zap.String("text", text), zap.Strings("labels", labels))
	return nil
}
