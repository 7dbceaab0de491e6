package application

import (
	"time"

	"storefront/internal/service/inventory/domain"
)

type CreateInventoryRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// StockRequest covers add/reduce/reserve/release; quantity is a positive delta.
type StockRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// UpdateInventoryRequest patches individual fields; nil means leave as is.
type UpdateInventoryRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  *int   `json:"quantity,omitempty"`
	Reserved  *int   `json:"reserved,omitempty"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

type InventoryResponse struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(inv *domain.Inventory) *InventoryResponse {
	return &InventoryResponse{
		ProductID: inv.ProductID,
		Quantity:  inv.Quantity,
		Reserved:  inv.Reserved,
		IsActive:  inv.IsActive,
		UpdatedAt: inv.UpdatedAt,
	}
}
