package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"storefront/internal/service/inventory/domain"
)

// RedisCatalog keeps the denormalized stock count the catalog service reads
// for product listings. One hash per product, stock under a single field.
type RedisCatalog struct {
	client *redis.Client
}

func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

const stockField = "stock"

func catalogKey(productID string) string {
	return fmt.Sprintf("catalog:product:%s", productID)
}

func (c *RedisCatalog) InitStock(ctx context.Context, productID string, quantity int) error {
	if err := c.client.HSet(ctx, catalogKey(productID), stockField, quantity).Err(); err != nil {
		return errors.Wrapf(err, "init catalog stock for %s", productID)
	}
	return nil
}

func (c *RedisCatalog) AdjustStock(ctx context.Context, productID string, delta int) error {
	if err := c.client.HIncrBy(ctx, catalogKey(productID), stockField, int64(delta)).Err(); err != nil {
		return errors.Wrapf(err, "adjust catalog stock for %s", productID)
	}
	return nil
}

func (c *RedisCatalog) SetStock(ctx context.Context, productID string, quantity int) error {
	if err := c.client.HSet(ctx, catalogKey(productID), stockField, quantity).Err(); err != nil {
		return errors.Wrapf(err, "set catalog stock for %s", productID)
	}
	return nil
}

func (c *RedisCatalog) GetStock(ctx context.Context, productID string) (int, error) {
	val, err := c.client.HGet(ctx, catalogKey(productID), stockField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, errors.Wrapf(err, "read catalog stock for %s", productID)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed catalog stock for %s", productID)
	}
	return n, nil
}
