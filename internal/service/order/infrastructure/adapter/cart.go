package adapter

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/breaker"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/constants"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/port"
)

var ErrCartNotFound = errors.New("cart not found")

type CartAdapter struct {
	client *httpclient.Client
	br     *breaker.Breaker
}

func NewCartAdapter(client *httpclient.Client, cfg *bootstrap.Config) *CartAdapter {
	return &CartAdapter{
		client: client,
		br:     newBreaker(cfg, "cart.get_cart", "cart lookup"),
	}
}

func (a *CartAdapter) GetCart(ctx context.Context, userID string) (*port.Cart, error) {
	var cart port.Cart
	err := a.br.Do(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s/%s", constants.CartByUserPath, userID)
		return a.client.GetJSON(ctx, constants.CartService, path, &cart)
	})
	if err != nil {
		return nil, notFoundAs(err, ErrCartNotFound)
	}
	return &cart, nil
}
