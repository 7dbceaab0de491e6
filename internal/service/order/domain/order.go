package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrNotOwner          = errors.New("order does not belong to user")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCannotCancel      = errors.New("order can no longer be cancelled")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrPaymentMismatch   = errors.New("payment amount does not match order total")
)

// rank orders the forward lifecycle. CANCELLED sits outside it and is only
// reachable through Cancel.
var rank = map[Status]int{
	StatusPending:   0,
	StatusPaid:      1,
	StatusShipped:   2,
	StatusDelivered: 3,
}

// OrderItem is a priced snapshot of one cart line. UnitPrice is copied from
// the catalog at order time and never re-read.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice float64
	Quantity  int
	LineTotal float64
}

type Order struct {
	ID                string
	UserID            string
	ShippingAddressID string
	Items             []OrderItem
	Subtotal          float64
	Tax               float64
	ShippingFee       float64
	TotalPrice        float64
	Status            Status
	PaymentID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrder snapshots the priced items and derives the money fields. The
// total is subtotal + tax + shipping, always.
func NewOrder(userID, addressID string, items []OrderItem, taxRate, shippingFee float64) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	var subtotal float64
	for i := range items {
		items[i].LineTotal = items[i].UnitPrice * float64(items[i].Quantity)
		subtotal += items[i].LineTotal
	}
	tax := subtotal * taxRate
	now := time.Now()
	return &Order{
		ID:                uuid.New().String(),
		UserID:            userID,
		ShippingAddressID: addressID,
		Items:             items,
		Subtotal:          subtotal,
		Tax:               tax,
		ShippingFee:       shippingFee,
		TotalPrice:        subtotal + tax + shippingFee,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (o *Order) MarkPaid(paymentID string) {
	o.PaymentID = paymentID
	o.Status = StatusPaid
	o.UpdatedAt = time.Now()
}

// Cancel is allowed only before fulfilment starts.
func (o *Order) Cancel() error {
	if o.Status != StatusPending && o.Status != StatusPaid {
		return fmt.Errorf("%w: status is %s", ErrCannotCancel, o.Status)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// TransitionTo moves the order forward through the lifecycle; backward moves
// and transitions in or out of CANCELLED are rejected.
func (o *Order) TransitionTo(next Status) error {
	from, okFrom := rank[o.Status]
	to, okTo := rank[next]
	if !okFrom || !okTo || to <= from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}

// AttachPayment records an external payment reference after verifying the
// amount against the order total within epsilon.
func (o *Order) AttachPayment(paymentID string, amount, epsilon float64) error {
	if math.Abs(amount-o.TotalPrice) > epsilon {
		return fmt.Errorf("%w: paid %.2f, total %.2f", ErrPaymentMismatch, amount, o.TotalPrice)
	}
	o.PaymentID = paymentID
	o.UpdatedAt = time.Now()
	return nil
}
