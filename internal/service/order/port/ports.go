// Package port declares the outbound dependencies of the order saga. The
// HTTP and Kafka adapters in infrastructure implement them; tests supply
// fakes.
package port

import "context"

type Address struct {
	ID         string `json:"id"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	UserID string     `json:"userId"`
	Items  []CartItem `json:"items"`
}

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// IdentityService resolves users and their shipping addresses.
type IdentityService interface {
	GetAddress(ctx context.Context, addressID string) (*Address, error)
	GetUser(ctx context.Context, userID string) (*UserProfile, error)
}

// CartService fetches the user's current cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
}

// CatalogService resolves product names and current prices.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// PaymentService charges and, on saga abort, refunds.
type PaymentService interface {
	// Charge returns the payment reference on success.
	Charge(ctx context.Context, userID, orderID string, amount float64) (string, error)
	Refund(ctx context.Context, paymentID string, amount float64) error
}

// Notifier publishes order lifecycle events. Best effort: failures are
// logged, never propagated to the caller.
type Notifier interface {
	OrderCreated(ctx context.Context, orderID, userID string, total float64) error
	OrderCancelled(ctx context.Context, orderID, userID string) error
}
