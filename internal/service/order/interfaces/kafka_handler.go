// Package interfaces adapts broker commands onto the order application
// service and maps errors to HTTP-style status codes for the reply.
package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/breaker"
	"storefront/internal/idempotency"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure/adapter"
)

type CommandHandler struct {
	svc    *application.Service
	tracer trace.Tracer
}

func NewCommandHandler(svc *application.Service, tracer trace.Tracer) *CommandHandler {
	return &CommandHandler{svc: svc, tracer: tracer}
}

func (h *CommandHandler) Handle(ctx context.Context, cmd mq.Command) mq.Reply {
	ctx, span := h.tracer.Start(ctx, "order.command."+cmd.Name)
	defer span.End()

	switch cmd.Name {
	case "create_order":
		var req application.CreateOrderRequest
		return h.run(ctx, cmd, &req, 201, func() (interface{}, error) {
			return h.svc.CreateOrder(ctx, &req, cmd.IdempotencyKey)
		})
	case "cancel_order":
		var req application.CancelOrderRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.CancelOrder(ctx, &req, cmd.IdempotencyKey)
		})
	case "update_order_status":
		var req application.UpdateOrderStatusRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.UpdateOrderStatus(ctx, &req, cmd.IdempotencyKey)
		})
	case "add_payment_record":
		var req application.AddPaymentRecordRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.AddPaymentRecord(ctx, &req)
		})
	case "get_order_by_id":
		var req struct {
			OrderID string `json:"orderId"`
		}
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.GetOrderByID(ctx, req.OrderID)
		})
	case "get_user_orders":
		var req struct {
			UserID string `json:"userId"`
		}
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.GetUserOrders(ctx, req.UserID)
		})
	case "get_all_orders":
		resp, err := h.svc.GetAllOrders(ctx)
		if err != nil {
			return errorReply(ctx, cmd, err)
		}
		return successReply(resp, 200)
	default:
		return mq.Reply{StatusCode: 400, Message: "unknown command: " + cmd.Name}
	}
}

func (h *CommandHandler) run(ctx context.Context, cmd mq.Command, req interface{}, successCode int, fn func() (interface{}, error)) mq.Reply {
	if err := json.Unmarshal(cmd.Payload, req); err != nil {
		return mq.Reply{StatusCode: 400, Message: "malformed payload: " + err.Error()}
	}
	resp, err := fn()
	if err != nil {
		return errorReply(ctx, cmd, err)
	}
	return successReply(resp, successCode)
}

func successReply(payload interface{}, code int) mq.Reply {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mq.Reply{StatusCode: 500, Message: err.Error()}
	}
	return mq.Reply{StatusCode: code, Payload: raw}
}

func errorReply(ctx context.Context, cmd mq.Command, err error) mq.Reply {
	code := statusFor(err)
	if code >= 500 {
		logger.Ctx(ctx).Error().Err(err).Str("command", cmd.Name).Msg("command failed")
	} else {
		logger.Ctx(ctx).Warn().Err(err).Str("command", cmd.Name).Int("status", code).Msg("command rejected")
	}
	return mq.Reply{StatusCode: code, Message: err.Error()}
}

func statusFor(err error) int {
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return 400
	case errors.Is(err, domain.ErrEmptyCart):
		return 400
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, adapter.ErrAddressNotFound),
		errors.Is(err, adapter.ErrUserNotFound),
		errors.Is(err, adapter.ErrCartNotFound),
		errors.Is(err, adapter.ErrProductNotFound):
		return 404
	case errors.Is(err, domain.ErrNotOwner):
		return 403
	case errors.Is(err, domain.ErrCannotCancel),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, idempotency.ErrInProgress):
		return 409
	case errors.Is(err, domain.ErrPaymentMismatch),
		errors.Is(err, idempotency.ErrKeyReused):
		return 422
	case errors.Is(err, breaker.ErrServiceUnavailable),
		errors.Is(err, breaker.ErrTimeout):
		return 503
	default:
		return 500
	}
}
