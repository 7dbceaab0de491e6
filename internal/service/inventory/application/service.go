// Package application implements the stock engine: every mutation is
// deduplicated through the idempotency ledger, then executed inside one
// transaction that holds the row lock and keeps the catalog mirror in step.
package application

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/idempotency"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

type Service struct {
	repo     domain.Repository
	catalog  domain.CatalogStore
	ledger   idempotency.Ledger
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewService(repo domain.Repository, catalog domain.CatalogStore, ledger idempotency.Ledger, tracer trace.Tracer) *Service {
	return &Service{
		repo:     repo,
		catalog:  catalog,
		ledger:   ledger,
		tracer:   tracer,
		validate: validator.New(),
	}
}

func (s *Service) CreateInventory(ctx context.Context, req *CreateInventoryRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "create_inventory", idemKey, req, 201, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := domain.NewInventory(req.ProductID, req.Quantity)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, inv); err != nil {
			return nil, err
		}
		if err := s.catalog.InitStock(ctx, req.ProductID, req.Quantity); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) AddStock(ctx context.Context, req *StockRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_stock", idemKey, req, 200, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := s.repo.FindByProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if err := inv.Add(req.Quantity); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, inv); err != nil {
			return nil, err
		}
		if err := s.catalog.AdjustStock(ctx, req.ProductID, req.Quantity); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

// ReduceStock checks both stores before committing: the row lock makes the
// primary check authoritative, and the mirror read guards against the two
// stores having drifted apart.
func (s *Service) ReduceStock(ctx context.Context, req *StockRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "reduce_stock", idemKey, req, 200, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := s.repo.FindByProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		mirrored, err := s.catalog.GetStock(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if mirrored < req.Quantity {
			logger.Ctx(ctx).Warn().
				Str("product_id", req.ProductID).
				Int("primary", inv.Quantity).
				Int("mirror", mirrored).
				Msg("catalog mirror below requested quantity")
			return nil, domain.ErrInsufficientStock
		}
		if err := inv.Reduce(req.Quantity); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, inv); err != nil {
			return nil, err
		}
		if err := s.catalog.AdjustStock(ctx, req.ProductID, -req.Quantity); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) ReserveStock(ctx context.Context, req *StockRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "reserve_stock", idemKey, req, 200, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := s.repo.FindByProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		// Reservation shifts units between columns; total owned stock is
		// unchanged, so the mirror is left alone.
		if err := inv.Reserve(req.Quantity); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) ReleaseStock(ctx context.Context, req *StockRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "release_stock", idemKey, req, 200, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := s.repo.FindByProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if err := inv.Release(req.Quantity); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) UpdateInventory(ctx context.Context, req *UpdateInventoryRequest, idemKey string) (*InventoryResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update_inventory", idemKey, req, 200, func(ctx context.Context) (*domain.Inventory, error) {
		inv, err := s.repo.FindByProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if err := inv.Patch(req.Quantity, req.Reserved, req.IsActive); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, inv); err != nil {
			return nil, err
		}
		if req.Quantity != nil {
			if err := s.catalog.SetStock(ctx, req.ProductID, *req.Quantity); err != nil {
				return nil, err
			}
		}
		return inv, nil
	})
}

func (s *Service) GetInventoryForProduct(ctx context.Context, productID string) (*InventoryResponse, error) {
	inv, err := s.repo.FindByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return toResponse(inv), nil
}

func (s *Service) GetAvailableProducts(ctx context.Context) ([]*InventoryResponse, error) {
	invs, err := s.repo.FindAvailable(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*InventoryResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toResponse(inv))
	}
	return out, nil
}

// mutate is the shared write path: ledger check before any lock, the
// operation inside one transaction, ledger settlement after the outcome is
// known. An empty idemKey skips deduplication (trusted internal callers).
func (s *Service) mutate(ctx context.Context, op, idemKey string, req interface{}, successCode int, fn func(ctx context.Context) (*domain.Inventory, error)) (*InventoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "inventory."+op)
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
			var cached InventoryResponse
			if err := json.Unmarshal(check.ResultPayload, &cached); err != nil {
				return nil, err
			}
			logger.Ctx(ctx).Info().Str("operation", op).Str("key", idemKey).Msg("returning cached idempotent result")
			return &cached, nil
		}
	}

	var inv *domain.Inventory
	txErr := s.repo.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = fn(ctx)
		return err
	})

	if idemKey != "" {
		if txErr != nil {
			if err := s.ledger.MarkFailed(ctx, idemKey, txErr.Error()); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("key", idemKey).Msg("failed to settle idempotency key")
			}
		} else {
			result, err := json.Marshal(toResponse(inv))
			if err != nil {
				return nil, err
			}
			if err := s.ledger.MarkCompleted(ctx, idemKey, result, successCode); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("key", idemKey).Msg("failed to settle idempotency key")
			}
		}
	}
	if txErr != nil {
		return nil, txErr
	}
	return toResponse(inv), nil
}
