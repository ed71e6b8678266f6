package database

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kozaktomas/facepass/internal/metrics"
)

// CachedDescriptorStore serves the descriptor gallery from a TTL cache and
// drops the cached gallery whenever a descriptor is written or deleted.
type CachedDescriptorStore struct {
	DescriptorWriter
	cache *cache.Cache
}

// NewCachedDescriptorStore wraps store with a gallery cache. A non-positive
// ttl disables expiry; the cache is then only refreshed by writes.
func NewCachedDescriptorStore(store DescriptorWriter, ttl time.Duration) *CachedDescriptorStore {
	expiration := ttl
	if ttl <= 0 {
		expiration = cache.NoExpiration
	}
	return &CachedDescriptorStore{
		DescriptorWriter: store,
		cache:            cache.New(expiration, 10*time.Minute),
	}
}

// ListDescriptors returns the cached gallery, loading it on a miss.
// The returned slice is shared and must not be modified.
func (c *CachedDescriptorStore) ListDescriptors(ctx context.Context) ([]StoredDescriptor, error) {
	if cached, ok := c.cache.Get(GalleryCacheKey); ok {
		if gallery, ok := cached.([]StoredDescriptor); ok {
			metrics.GalleryCacheHit()
			return gallery, nil
		}
	}
	metrics.GalleryCacheMiss()

	gallery, err := c.DescriptorWriter.ListDescriptors(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(GalleryCacheKey, gallery)
	return gallery, nil
}

// SaveDescriptor writes through and invalidates the gallery, also when the
// inner store fails or panics after writing.
func (c *CachedDescriptorStore) SaveDescriptor(ctx context.Context, userID int64, descriptor []float32, model string) (int64, error) {
	defer c.Invalidate()
	return c.DescriptorWriter.SaveDescriptor(ctx, userID, descriptor, model)
}

// DeleteDescriptor deletes through and invalidates the gallery.
func (c *CachedDescriptorStore) DeleteDescriptor(ctx context.Context, userID int64) error {
	defer c.Invalidate()
	return c.DescriptorWriter.DeleteDescriptor(ctx, userID)
}

// Invalidate drops the cached gallery.
func (c *CachedDescriptorStore) Invalidate() {
	c.cache.Delete(GalleryCacheKey)
}
