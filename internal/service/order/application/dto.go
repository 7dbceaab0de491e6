package application

import (
	"time"

	"storefront/internal/service/order/domain"
)

type CreateOrderRequest struct {
	UserID            string `json:"userId" validate:"required"`
	ShippingAddressID string `json:"shippingAddressId" validate:"required"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=PAID SHIPPED DELIVERED"`
}

type AddPaymentRecordRequest struct {
	OrderID   string  `json:"orderId" validate:"required"`
	PaymentID string  `json:"paymentId" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

type OrderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"lineTotal"`
}

type OrderResponse struct {
	ID                string              `json:"id"`
	UserID            string              `json:"userId"`
	ShippingAddressID string              `json:"shippingAddressId"`
	Items             []OrderItemResponse `json:"items"`
	Subtotal          float64             `json:"subtotal"`
	Tax               float64             `json:"tax"`
	ShippingFee       float64             `json:"shippingFee"`
	TotalPrice        float64             `json:"totalPrice"`
	Status            string              `json:"status"`
	PaymentID         string              `json:"paymentId,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
}

func toResponse(o *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}
	return &OrderResponse{
		ID:                o.ID,
		UserID:            o.UserID,
		ShippingAddressID: o.ShippingAddressID,
		Items:             items,
		Subtotal:          o.Subtotal,
		Tax:               o.Tax,
		ShippingFee:       o.ShippingFee,
		TotalPrice:        o.TotalPrice,
		Status:            string(o.Status),
		PaymentID:         o.PaymentID,
		CreatedAt:         o.CreatedAt,
	}
}
