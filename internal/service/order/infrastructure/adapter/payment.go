package adapter

import (
	"context"

	"storefront/internal/breaker"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
)

type PaymentAdapter struct {
	client   *httpclient.Client
	chargeBr *breaker.Breaker
	refundBr *breaker.Breaker
}

func NewPaymentAdapter(client *httpclient.Client, cfg *bootstrap.Config) *PaymentAdapter {
	return &PaymentAdapter{
		client:   client,
		chargeBr: newBreaker(cfg, "payment.charge", "payment processing"),
		refundBr: newBreaker(cfg, "payment.refund", "payment refund"),
	}
}

type chargeRequest struct {
	UserID  string  `json:"userId"`
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

type chargeResponse struct {
	PaymentID string `json:"paymentId"`
}

func (a *PaymentAdapter) Charge(ctx context.Context, userID, orderID string, amount float64) (string, error) {
	var resp chargeResponse
	err := a.chargeBr.Do(ctx, func(ctx context.Context) error {
		req := chargeRequest{UserID: userID, OrderID: orderID, Amount: amount}
		return a.client.PostJSON(ctx, constants.PaymentService, constants.PaymentChargePath, req, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.PaymentID, nil
}

type refundRequest struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
}

func (a *PaymentAdapter) Refund(ctx context.Context, paymentID string, amount float64) error {
	err := a.refundBr.Do(ctx, func(ctx context.Context) error {
		return a.client.PostJSON(ctx, constants.PaymentService, constants.PaymentRefundPath, refundRequest{PaymentID: paymentID, Amount: amount}, nil)
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", paymentID).Msg("refund call failed")
	}
	return err
}
