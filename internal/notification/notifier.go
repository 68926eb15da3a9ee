// Package notification delivers triggered price alerts to external channels.
package notification

import (
	"context"
	"fmt"
	"time"

	"signalist/internal/logger"
	"signalist/internal/models"
)

type Level string

const (
	LevelInfo Level = "INFO"
)

// Message is one notification.
type Message struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Symbol  string    `json:"symbol,omitempty"`
	AlertID string    `json:"alertId,omitempty"`
	SentAt  time.Time `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns error if delivery fails.
	Send(ctx context.Context, msg Message) error
}

// ForAlert renders the message announcing that alert fired at price.
func ForAlert(alert models.Alert, price float64) Message {
	at := time.Now().UTC()
	if alert.TriggeredAt != nil {
		at = *alert.TriggeredAt
	}
	return Message{
		Level:   LevelInfo,
		Title:   fmt.Sprintf("%s price alert", alert.Symbol),
		Message: fmt.Sprintf("%s is %s $%.2f (now $%.2f)", alert.Name, alert.Type, alert.TargetPrice, price),
		Symbol:  alert.Symbol,
		AlertID: alert.ID,
		SentAt:  at,
	}
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	logger.Get().Infow("notify", "level", msg.Level, "title", msg.Title, "message", msg.Message)
	return nil
}

// Multi fans a message out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
