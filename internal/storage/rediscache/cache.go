// Package rediscache keeps hot catalog reads in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultTTL bounds how stale a cached product may get if an invalidation
// is lost.
const DefaultTTL = 5 * time.Minute

const categoriesKey = "catalog:categories"

func productKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

var _ product.Repository = (*ProductCache)(nil)

// ProductCache is a read-through cache in front of a product.Repository.
// Single product reads and the category list are cached; listings and batch
// reads used by checkout always go to the underlying repository. Writes
// drop the affected keys.
type ProductCache struct {
	next   product.Repository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProductCache wraps next. A zero ttl selects DefaultTTL.
func NewProductCache(next product.Repository, client redis.UniversalClient, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProductCache{next: next, client: client, ttl: ttl}
}

// List is not cached.
func (c *ProductCache) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	return c.next.List(ctx, f)
}

// GetByID serves the product from Redis when present.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	if c.load(ctx, productKey(id), &p) {
		return &p, nil
	}

	got, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, productKey(id), got)
	return got, nil
}

// GetByIDs is not cached: checkout needs live stock.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return c.next.GetByIDs(ctx, ids)
}

// Create stores p and drops the category list.
func (c *ProductCache) Create(ctx context.Context, p *product.Product) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.drop(ctx, categoriesKey)
	return nil
}

// Update writes through and drops the cached copy.
func (c *ProductCache) Update(ctx context.Context, id string, in product.Input, at time.Time) (*product.Product, error) {
	p, err := c.next.Update(ctx, id, in, at)
	if err != nil {
		return nil, err
	}
	c.drop(ctx, productKey(id), categoriesKey)
	return p, nil
}

// Delete removes the product and its cached copy.
func (c *ProductCache) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.drop(ctx, productKey(id), categoriesKey)
	return nil
}

// Categories serves the category list from Redis when present.
func (c *ProductCache) Categories(ctx context.Context) ([]product.Category, error) {
	var cats []product.Category
	if c.load(ctx, categoriesKey, &cats) {
		return cats, nil
	}

	cats, err := c.next.Categories(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, categoriesKey, cats)
	return cats, nil
}

// Invalidate drops the cached copies of the given products.
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = productKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete cached products")
	}
	return nil
}

// load reports whether key was found and decoded into dst. Redis failures
// are logged and treated as a miss.
func (c *ProductCache) load(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		zctx.From(ctx).Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		zctx.From(ctx).Warn("Catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ProductCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zctx.From(ctx).Warn("Catalog cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *ProductCache) drop(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		zctx.From(ctx).Warn("Catalog cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
