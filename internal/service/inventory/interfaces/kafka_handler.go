// Package interfaces adapts broker commands onto the inventory application
// service and maps domain errors to HTTP-style status codes for the reply.
package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/idempotency"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
)

type CommandHandler struct {
	svc    *application.Service
	tracer trace.Tracer
}

func NewCommandHandler(svc *application.Service, tracer trace.Tracer) *CommandHandler {
	return &CommandHandler{svc: svc, tracer: tracer}
}

func (h *CommandHandler) Handle(ctx context.Context, cmd mq.Command) mq.Reply {
	ctx, span := h.tracer.Start(ctx, "inventory.command."+cmd.Name)
	defer span.End()

	switch cmd.Name {
	case "create_inventory":
		var req application.CreateInventoryRequest
		return h.run(ctx, cmd, &req, 201, func() (interface{}, error) {
			return h.svc.CreateInventory(ctx, &req, cmd.IdempotencyKey)
		})
	case "add_stock":
		var req application.StockRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.AddStock(ctx, &req, cmd.IdempotencyKey)
		})
	case "reduce_stock":
		var req application.StockRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.ReduceStock(ctx, &req, cmd.IdempotencyKey)
		})
	case "reserve_stock":
		var req application.StockRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.ReserveStock(ctx, &req, cmd.IdempotencyKey)
		})
	case "release_stock":
		var req application.StockRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.ReleaseStock(ctx, &req, cmd.IdempotencyKey)
		})
	case "update_inventory":
		var req application.UpdateInventoryRequest
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.UpdateInventory(ctx, &req, cmd.IdempotencyKey)
		})
	case "get_inventory_for_product":
		var req struct {
			ProductID string `json:"productId"`
		}
		return h.run(ctx, cmd, &req, 200, func() (interface{}, error) {
			return h.svc.GetInventoryForProduct(ctx, req.ProductID)
		})
	case "get_available_products":
		resp, err := h.svc.GetAvailableProducts(ctx)
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
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrNegativeValue):
		return 400
	case errors.Is(err, domain.ErrNotFound):
		return 404
	case errors.Is(err, domain.ErrAlreadyExists):
		return 409
	case errors.Is(err, idempotency.ErrInProgress):
		return 409
	case errors.Is(err, idempotency.ErrKeyReused):
		return 422
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInsufficientReserved):
		return 422
	default:
		return 500
	}
}
