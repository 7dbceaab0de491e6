package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/port"
)

// PaymentHandler charges the order total. A successful charge pushes a
// refund compensation so a later step failure gives the money back.
type PaymentHandler struct {
	Base
	payments port.PaymentService
}

func NewPaymentHandler(payments port.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) Handle(ctx context.Context, sc *Context) error {
	paymentID, err := h.payments.Charge(ctx, sc.UserID, sc.Order.ID, sc.Order.TotalPrice)
	if err != nil {
		return err
	}

	amount := sc.Order.TotalPrice
	sc.AddCompensation("refund-payment", func(ctx context.Context) error {
		return h.payments.Refund(ctx, paymentID, amount)
	})

	sc.Order.MarkPaid(paymentID)
	logger.Ctx(ctx).Info().Str("order_id", sc.Order.ID).Str("payment_id", paymentID).Msg("payment captured")
	return h.executeNext(ctx, sc)
}
