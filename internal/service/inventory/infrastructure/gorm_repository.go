package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/inventory/domain"
)

// InventoryModel is the persistence shape of the inventory aggregate.
type InventoryModel struct {
	ProductID string `gorm:"primaryKey;size:64"`
	Quantity  int    `gorm:"not null"`
	Reserved  int    `gorm:"not null"`
	IsActive  bool   `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (InventoryModel) TableName() string { return "inventories" }

type txKey struct{}

// GormRepository implements domain.Repository on MySQL. Writes made through
// a ctx produced by InTransaction share one transaction.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *GormRepository) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *GormRepository) Create(ctx context.Context, inv *domain.Inventory) error {
	model := toModel(inv)
	if err := r.conn(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *GormRepository) FindByProduct(ctx context.Context, productID string) (*domain.Inventory, error) {
	var model InventoryModel
	err := r.conn(ctx).First(&model, "product_id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *GormRepository) FindByProductForUpdate(ctx context.Context, productID string) (*domain.Inventory, error) {
	var model InventoryModel
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "product_id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *GormRepository) Save(ctx context.Context, inv *domain.Inventory) error {
	return r.conn(ctx).
		Model(&InventoryModel{}).
		Where("product_id = ?", inv.ProductID).
		Updates(map[string]interface{}{
			"quantity":   inv.Quantity,
			"reserved":   inv.Reserved,
			"is_active":  inv.IsActive,
			"updated_at": inv.UpdatedAt,
		}).Error
}

func (r *GormRepository) FindAvailable(ctx context.Context) ([]*domain.Inventory, error) {
	var models []InventoryModel
	err := r.conn(ctx).
		Where("is_active = ? AND quantity > 0", true).
		Order("product_id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Inventory, 0, len(models))
	for i := range models {
		out = append(out, toDomain(&models[i]))
	}
	return out, nil
}

func toModel(inv *domain.Inventory) *InventoryModel {
	return &InventoryModel{
		ProductID: inv.ProductID,
		Quantity:  inv.Quantity,
		Reserved:  inv.Reserved,
		IsActive:  inv.IsActive,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func toDomain(m *InventoryModel) *domain.Inventory {
	return &domain.Inventory{
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		Reserved:  m.Reserved,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
