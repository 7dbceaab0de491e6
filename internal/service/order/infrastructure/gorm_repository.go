package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"storefront/internal/service/order/domain"
)

type OrderModel struct {
	ID                string `gorm:"primaryKey;size:36"`
	UserID            string `gorm:"size:64;index;not null"`
	ShippingAddressID string `gorm:"size:64;not null"`
	Subtotal          float64
	Tax               float64
	ShippingFee       float64
	TotalPrice        float64
	Status            string           `gorm:"size:16;index;not null"`
	PaymentID         string           `gorm:"size:64"`
	Items             []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"size:36;index;not null"`
	ProductID string `gorm:"size:64;not null"`
	Name      string `gorm:"size:255"`
	UnitPrice float64
	Quantity  int
	LineTotal float64
}

func (OrderItemModel) TableName() string { return "order_items" }

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Create writes the header and item rows in one transaction; GORM cascades
// the Items association.
func (r *GormRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Create(toModel(order)).Error
}

func (r *GormRepository) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&model, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *GormRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

func (r *GormRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

// Save updates the mutable header fields only; item snapshots are immutable.
func (r *GormRepository) Save(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":     string(order.Status),
			"payment_id": order.PaymentID,
			"updated_at": order.UpdatedAt,
		}).Error
}

func toModel(o *domain.Order) *OrderModel {
	items := make([]OrderItemModel, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemModel{
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}
	return &OrderModel{
		ID:                o.ID,
		UserID:            o.UserID,
		ShippingAddressID: o.ShippingAddressID,
		Subtotal:          o.Subtotal,
		Tax:               o.Tax,
		ShippingFee:       o.ShippingFee,
		TotalPrice:        o.TotalPrice,
		Status:            string(o.Status),
		PaymentID:         o.PaymentID,
		Items:             items,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toDomain(m *OrderModel) *domain.Order {
	items := make([]domain.OrderItem, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}
	return &domain.Order{
		ID:                m.ID,
		UserID:            m.UserID,
		ShippingAddressID: m.ShippingAddressID,
		Items:             items,
		Subtotal:          m.Subtotal,
		Tax:               m.Tax,
		ShippingFee:       m.ShippingFee,
		TotalPrice:        m.TotalPrice,
		Status:            domain.Status(m.Status),
		PaymentID:         m.PaymentID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toDomainSlice(models []OrderModel) []*domain.Order {
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomain(&models[i]))
	}
	return out
}
