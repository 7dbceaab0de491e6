package saga

import (
	"context"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// CartHandler fetches the user's cart and rejects empty ones.
type CartHandler struct {
	Base
	carts port.CartService
}

func NewCartHandler(carts port.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) Handle(ctx context.Context, sc *Context) error {
	cart, err := h.carts.GetCart(ctx, sc.UserID)
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		return domain.ErrEmptyCart
	}
	sc.Cart = cart
	return h.executeNext(ctx, sc)
}
