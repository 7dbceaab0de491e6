package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/mq"
)

// NotificationEvent is the payload the push gateway fans out to connected
// clients.
type NotificationEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	Total     float64   `json:"total,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaNotifier publishes order lifecycle events to the notifications topic.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{writer: mq.NewKafkaWriter(brokers, constants.NotificationsTopic)}
}

func (n *KafkaNotifier) OrderCreated(ctx context.Context, orderID, userID string, total float64) error {
	return n.publish(ctx, NotificationEvent{
		Type:      "order_created",
		UserID:    userID,
		OrderID:   orderID,
		Total:     total,
		Message:   "your order has been placed",
		Timestamp: time.Now(),
	})
}

func (n *KafkaNotifier) OrderCancelled(ctx context.Context, orderID, userID string) error {
	return n.publish(ctx, NotificationEvent{
		Type:      "order_cancelled",
		UserID:    userID,
		OrderID:   orderID,
		Message:   "your order has been cancelled",
		Timestamp: time.Now(),
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, event NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Keyed by user so one user's notifications stay ordered.
	return mq.ProduceMessage(ctx, n.writer, []byte(event.UserID), body)
}

func (n *KafkaNotifier) Close() error { return n.writer.Close() }
