package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/port"
)

// NotifyHandler publishes the order-created event. Best effort: the order
// already exists, so a publish failure is logged and swallowed.
type NotifyHandler struct {
	Base
	notifier port.Notifier
}

func NewNotifyHandler(notifier port.Notifier) *NotifyHandler {
	return &NotifyHandler{notifier: notifier}
}

func (h *NotifyHandler) Handle(ctx context.Context, sc *Context) error {
	if err := h.notifier.OrderCreated(ctx, sc.Order.ID, sc.UserID, sc.Order.TotalPrice); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", sc.Order.ID).Msg("order-created notification failed")
	}
	return h.executeNext(ctx, sc)
}
