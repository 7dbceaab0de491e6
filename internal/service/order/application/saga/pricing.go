package saga

import (
	"context"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// PricingHandler snapshots name and unit price for every cart line from the
// catalog and builds the order aggregate. Prices are frozen here; later
// catalog changes never affect this order.
type PricingHandler struct {
	Base
	catalog     port.CatalogService
	taxRate     float64
	shippingFee float64
}

func NewPricingHandler(catalog port.CatalogService, taxRate, shippingFee float64) *PricingHandler {
	return &PricingHandler{catalog: catalog, taxRate: taxRate, shippingFee: shippingFee}
}

func (h *PricingHandler) Handle(ctx context.Context, sc *Context) error {
	items := make([]domain.OrderItem, 0, len(sc.Cart.Items))
	for _, line := range sc.Cart.Items {
		product, err := h.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
		})
	}

	order, err := domain.NewOrder(sc.UserID, sc.AddressID, items, h.taxRate, h.shippingFee)
	if err != nil {
		return err
	}
	sc.Order = order

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Float64("subtotal", order.Subtotal).
		Float64("total", order.TotalPrice).
		Int("items", len(order.Items)).
		Msg("order priced")
	return h.executeNext(ctx, sc)
}
