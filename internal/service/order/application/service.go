// Package application orchestrates order creation as a saga and guards
// every mutating entry point with the idempotency ledger.
package application

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/idempotency"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

const serviceName = "order-service"

// Pricing carries the money knobs from configuration.
type Pricing struct {
	TaxRate        float64
	ShippingFee    float64
	PaymentEpsilon float64
}

type Service struct {
	repo     domain.Repository
	ledger   idempotency.Ledger
	identity port.IdentityService
	carts    port.CartService
	catalog  port.CatalogService
	payments port.PaymentService
	notifier port.Notifier
	pricing  Pricing
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewService(
	repo domain.Repository,
	ledger idempotency.Ledger,
	identity port.IdentityService,
	carts port.CartService,
	catalog port.CatalogService,
	payments port.PaymentService,
	notifier port.Notifier,
	pricing Pricing,
	tracer trace.Tracer,
) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		identity: identity,
		carts:    carts,
		catalog:  catalog,
		payments: payments,
		notifier: notifier,
		pricing:  pricing,
		tracer:   tracer,
		validate: validator.New(),
	}
}

// buildChain wires the saga steps in execution order.
func (s *Service) buildChain() saga.Handler {
	customer := saga.NewCustomerHandler(s.identity)
	customer.
		SetNext(saga.NewCartHandler(s.carts)).
		SetNext(saga.NewPricingHandler(s.catalog, s.pricing.TaxRate, s.pricing.ShippingFee)).
		SetNext(saga.NewPaymentHandler(s.payments)).
		SetNext(saga.NewPersistHandler(s.repo)).
		SetNext(saga.NewNotifyHandler(s.notifier))
	return customer
}

// CreateOrder runs the full saga. On any step failure the pushed
// compensations unwind (a captured payment is refunded) and the key is
// settled as failed so the client may retry.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest, idemKey string) (*OrderResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.dedup(ctx, "create_order", idemKey, req, 201, func(ctx context.Context) (*domain.Order, error) {
		sc := &saga.Context{UserID: req.UserID, AddressID: req.ShippingAddressID}
		if err := s.buildChain().Handle(ctx, sc); err != nil {
			sc.Compensate(ctx)
			return nil, err
		}
		return sc.Order, nil
	})
}

func (s *Service) CancelOrder(ctx context.Context, req *CancelOrderRequest, idemKey string) (*OrderResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.dedup(ctx, "cancel_order", idemKey, req, 200, func(ctx context.Context) (*domain.Order, error) {
		order, err := s.repo.FindByID(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if order.UserID != req.UserID {
			return nil, domain.ErrNotOwner
		}
		if err := order.Cancel(); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return nil, err
		}
		if err := s.notifier.OrderCancelled(ctx, order.ID, order.UserID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("order-cancelled notification failed")
		}
		return order, nil
	})
}

func (s *Service) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest, idemKey string) (*OrderResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.dedup(ctx, "update_order_status", idemKey, req, 200, func(ctx context.Context) (*domain.Order, error) {
		order, err := s.repo.FindByID(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if err := order.TransitionTo(domain.Status(req.Status)); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return nil, err
		}
		return order, nil
	})
}

// AddPaymentRecord attaches an out-of-band payment reference. The amount
// must match the order total within the configured epsilon.
func (s *Service) AddPaymentRecord(ctx context.Context, req *AddPaymentRecordRequest) (*OrderResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.AttachPayment(req.PaymentID, req.Amount, s.pricing.PaymentEpsilon); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	return toResponse(order), nil
}

func (s *Service) GetOrderByID(ctx context.Context, orderID string) (*OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toResponse(order), nil
}

func (s *Service) GetUserOrders(ctx context.Context, userID string) ([]*OrderResponse, error) {
	orders, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toResponses(orders), nil
}

func (s *Service) GetAllOrders(ctx context.Context) ([]*OrderResponse, error) {
	orders, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return toResponses(orders), nil
}

func toResponses(orders []*domain.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResponse(o))
	}
	return out
}

// dedup is the mutating entry point wrapper: ledger check first, then the
// operation, then ledger settlement. An empty key skips deduplication.
func (s *Service) dedup(ctx context.Context, op, idemKey string, req interface{}, successCode int, fn func(ctx context.Context) (*domain.Order, error)) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "order."+op)
	defer span.End()
	span.SetAttributes(attribute.String("idempotency.key", idemKey))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if idemKey != "" {
		check, err := s.ledger.Check(ctx, idemKey, serviceName, op, payload)
		if err != nil {
			return nil, err
		}
		if !check.Fresh {
			var cached OrderResponse
			if err := json.Unmarshal(check.ResultPayload, &cached); err != nil {
				return nil, err
			}
			logger.Ctx(ctx).Info().Str("operation", op).Str("key", idemKey).Msg("returning cached idempotent result")
			return &cached, nil
		}
	}

	order, opErr := fn(ctx)

	if idemKey != "" {
		if opErr != nil {
			if err := s.ledger.MarkFailed(ctx, idemKey, opErr.Error()); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("key", idemKey).Msg("failed to settle idempotency key")
			}
		} else {
			result, err := json.Marshal(toResponse(order))
			if err != nil {
				return nil, err
			}
			if err := s.ledger.MarkCompleted(ctx, idemKey, result, successCode); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("key", idemKey).Msg("failed to settle idempotency key")
			}
		}
	}
	if opErr != nil {
		return nil, opErr
	}
	return toResponse(order), nil
}
