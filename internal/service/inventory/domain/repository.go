package domain

import "context"

// Repository persists the inventory aggregate. Implemented by the GORM
// repository in infrastructure.
type Repository interface {
	// Create inserts a new record; ErrAlreadyExists on a duplicate product.
	Create(ctx context.Context, inv *Inventory) error

	FindByProduct(ctx context.Context, productID string) (*Inventory, error)

	// FindByProductForUpdate loads the record under an exclusive row lock.
	// Only meaningful inside InTransaction; the lock is held to commit.
	FindByProductForUpdate(ctx context.Context, productID string) (*Inventory, error)

	Save(ctx context.Context, inv *Inventory) error

	// FindAvailable lists active records with available stock.
	FindAvailable(ctx context.Context) ([]*Inventory, error)

	// InTransaction runs fn inside one transaction; any error rolls back
	// every write made through the ctx it passes.
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogStore is the denormalized stock count kept in the product catalog
// store. It is a mirror, not a source of truth; a failed mirror write must
// abort the surrounding transaction.
type CatalogStore interface {
	// InitStock seeds the mirror when inventory is first created.
	InitStock(ctx context.Context, productID string, quantity int) error

	// AdjustStock applies a delta to the mirrored count.
	AdjustStock(ctx context.Context, productID string, delta int) error

	// SetStock overwrites the mirrored count (admin corrections).
	SetStock(ctx context.Context, productID string, quantity int) error

	// GetStock reads the mirrored count.
	GetStock(ctx context.Context, productID string) (int, error)
}
