package pushgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/session"
)

// notification mirrors the event shape the order service publishes.
type notification struct {
	Type    string  `json:"type"`
	UserID  string  `json:"userId"`
	OrderID string  `json:"orderId"`
	Total   float64 `json:"total,omitempty"`
	Message string  `json:"message"`
}

// Consumer fans notification events out to locally connected users. Every
// node consumes the full topic under its own group; the Redis session map
// tells it which events are its to deliver.
type Consumer struct {
	reader   *kafka.Reader
	hub      *Hub
	sessions *session.Manager
	nodeID   string
}

func NewConsumer(brokers []string, hub *Hub, sessions *session.Manager, nodeID string) *Consumer {
	return &Consumer{
		reader:   mq.NewKafkaReader(brokers, constants.NotificationsTopic, constants.PushGatewayGroupPrefix+nodeID),
		hub:      hub,
		sessions: sessions,
		nodeID:   nodeID,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().Error().Err(err).Msg("notification consumer read failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		c.handle(mq.ExtractTraceContext(ctx, msg.Headers), msg.Value)
	}
}

func (c *Consumer) handle(ctx context.Context, raw []byte) {
	var event notification
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("malformed notification skipped")
		return
	}

	node, err := c.sessions.GetUserGateway(ctx, event.UserID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user_id", event.UserID).Msg("session lookup failed")
		return
	}
	if node != c.nodeID {
		return // user is connected elsewhere, or not at all
	}
	c.hub.Deliver(event.UserID, raw)
	logger.Ctx(ctx).Debug().Str("user_id", event.UserID).Str("type", event.Type).Msg("notification delivered")
}

func (c *Consumer) Close() error { return c.reader.Close() }
