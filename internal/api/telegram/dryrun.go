package telegram

import (
	"context"
	"fmt"

	"github.com/drallgood/bookfeed/internal/logger"
)

// DryRunSender logs what would be sent
type DryRunSender struct {
	logger *logger.Logger
}

func NewDryRunSender(log *logger.Logger) *DryRunSender {
	if log == nil {
		log = logger.Get()
	}
	return &DryRunSender{logger: log.Component("telegram-dry-run")}
}

func (d *DryRunSender) SendMediaGroup(_ context.Context, chatID string, photos []InputPhoto) error {
	if len(photos) == 0 || len(photos) > MaxMediaGroupSize {
		return fmt.Errorf("media group has %d items, limit is %d", len(photos), MaxMediaGroupSize)
	}
	for i, p := range photos {
		d.logger.Info("[DRY-RUN] Would send photo", map[string]interface{}{
			"chat_id":  chatID,
			"position": i,
			"url":      p.URL,
			"bytes":    len(p.Data),
			"caption":  p.Caption,
		})
	}
	return nil
}

func (d *DryRunSender) SendMessage(_ context.Context, chatID, text, parseMode string) error {
	d.logger.Info("[DRY-RUN] Would send message", map[string]interface{}{
		"chat_id":    chatID,
		"parse_mode": parseMode,
		"length":     len([]rune(text)),
	})
	return nil
}
