package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound             = errors.New("inventory record not found")
	ErrAlreadyExists        = errors.New("inventory record already exists for product")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientReserved = errors.New("insufficient reserved stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrNegativeValue        = errors.New("stock values cannot be negative")
)

// Inventory is the per-product stock aggregate. Quantity counts available,
// non-reserved units; Reserved counts units held against unfulfilled orders.
// Both are non-negative at all times.
type Inventory struct {
	ProductID string
	Quantity  int
	Reserved  int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewInventory(productID string, quantity int) (*Inventory, error) {
	if quantity < 0 {
		return nil, ErrNegativeValue
	}
	now := time.Now()
	return &Inventory{
		ProductID: productID,
		Quantity:  quantity,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (i *Inventory) Add(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	i.Quantity += n
	i.UpdatedAt = time.Now()
	return nil
}

// Reduce sells n units. A reduce that would leave fewer free units than
// there are open reservations is rejected: reserved orders keep a matching
// buffer in free stock until they are released or fulfilled.
func (i *Inventory) Reduce(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if i.Quantity-i.Reserved < n {
		return ErrInsufficientStock
	}
	i.Quantity -= n
	i.UpdatedAt = time.Now()
	return nil
}

// Reserve moves n units from available to held. The catalog mirror is not
// touched: reserved units are still owned stock.
func (i *Inventory) Reserve(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if i.Quantity < n {
		return ErrInsufficientStock
	}
	i.Quantity -= n
	i.Reserved += n
	i.UpdatedAt = time.Now()
	return nil
}

// Release is the inverse of Reserve.
func (i *Inventory) Release(n int) error {
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if i.Reserved < n {
		return ErrInsufficientReserved
	}
	i.Reserved -= n
	i.Quantity += n
	i.UpdatedAt = time.Now()
	return nil
}

// Patch is the admin correction path: direct field assignment with only the
// non-negativity invariant enforced.
func (i *Inventory) Patch(quantity, reserved *int, isActive *bool) error {
	if quantity != nil && *quantity < 0 {
		return ErrNegativeValue
	}
	if reserved != nil && *reserved < 0 {
		return ErrNegativeValue
	}
	if quantity != nil {
		i.Quantity = *quantity
	}
	if reserved != nil {
		i.Reserved = *reserved
	}
	if isActive != nil {
		i.IsActive = *isActive
	}
	i.UpdatedAt = time.Now()
	return nil
}
