package domain

import "context"

// Repository persists orders together with their item snapshots.
type Repository interface {
	// Create writes the order and its items atomically.
	Create(ctx context.Context, order *Order) error

	FindByID(ctx context.Context, orderID string) (*Order, error)
	FindByUser(ctx context.Context, userID string) ([]*Order, error)
	FindAll(ctx context.Context) ([]*Order, error)

	// Save updates the mutable header fields (status, payment reference).
	Save(ctx context.Context, order *Order) error
}
