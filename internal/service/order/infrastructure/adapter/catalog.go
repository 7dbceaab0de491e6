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

var ErrProductNotFound = errors.New("product not found")

type CatalogAdapter struct {
	client *httpclient.Client
	br     *breaker.Breaker
}

func NewCatalogAdapter(client *httpclient.Client, cfg *bootstrap.Config) *CatalogAdapter {
	return &CatalogAdapter{
		client: client,
		br:     newBreaker(cfg, "catalog.get_product", "product lookup"),
	}
}

func (a *CatalogAdapter) GetProduct(ctx context.Context, productID string) (*port.Product, error) {
	var product port.Product
	err := a.br.Do(ctx, func(ctx context.Context) error {
		path := fmt.Sprintf("%s/%s", constants.CatalogProductPath, productID)
		return a.client.GetJSON(ctx, constants.CatalogService, path, &product)
	})
	if err != nil {
		return nil, notFoundAs(err, ErrProductNotFound)
	}
	return &product, nil
}
