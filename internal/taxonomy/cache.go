// internal/taxonomy/cache.go
package taxonomy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const treeCacheKey = "taxonomy:tree"

// TreeCategory is the read-only projection served to the intake UI and
// the template data builders.
type TreeCategory struct {
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Order   int          `json:"order"`
	Options []TreeOption `json:"options"`
}

type TreeOption struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// TreeCache is a read-through cache over the append-only store with a
// bounded staleness interval (the configured TTL). A stale read can
// only miss recently published codes, never see wrong ones, so
// correctness does not depend on freshness. Redis backs the cache when
// configured; otherwise an in-process copy is used.
type TreeCache struct {
	store  *Store
	client *redis.Client
	ttl    time.Duration

	mtx      sync.Mutex
	local    []TreeCategory
	fetchedAt time.Time
}

func NewTreeCache(store *Store, client *redis.Client, ttl time.Duration) *TreeCache {
	return &TreeCache{
		store:  store,
		client: client,
		ttl:    ttl,
	}
}

// Tree returns the ordered category→option tree, served from cache
// within the staleness bound.
func (c *TreeCache) Tree(ctx context.Context) ([]TreeCategory, error) {
	if c.client != nil {
		if tree, ok := c.fromRedis(ctx); ok {
			return tree, nil
		}
	} else if tree, ok := c.fromLocal(); ok {
		return tree, nil
	}

	categories, err := c.store.ListTaxonomy(ctx)
	if err != nil {
		return nil, err
	}

	tree := make([]TreeCategory, 0, len(categories))
	for _, cat := range categories {
		tc := TreeCategory{
			Code:    cat.Code,
			Name:    cat.Name,
			Order:   cat.Order,
			Options: make([]TreeOption, 0, len(cat.Options)),
		}
		for _, opt := range cat.Options {
			tc.Options = append(tc.Options, TreeOption{
				Code:  opt.Code,
				Name:  opt.Name,
				Order: opt.Order,
			})
		}
		tree = append(tree, tc)
	}

	c.put(ctx, tree)
	return tree, nil
}

// Invalidate drops the cached tree. Called after publications so new
// codes show up before the TTL would expire; failures are tolerated
// since the TTL bounds staleness anyway.
func (c *TreeCache) Invalidate(ctx context.Context) {
	if c.client != nil {
		if err := c.client.Del(ctx, treeCacheKey).Err(); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate taxonomy cache")
		}
		return
	}

	c.mtx.Lock()
	c.local = nil
	c.mtx.Unlock()
}

func (c *TreeCache) fromRedis(ctx context.Context) ([]TreeCategory, bool) {
	raw, err := c.client.Get(ctx, treeCacheKey).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logrus.WithError(err).Warn("Taxonomy cache read failed, falling back to store")
		return nil, false
	}

	var tree []TreeCategory
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		logrus.WithError(err).Warn("Taxonomy cache entry corrupt, refetching")
		return nil, false
	}
	return tree, true
}

func (c *TreeCache) fromLocal() ([]TreeCategory, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.local == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.local, true
}

func (c *TreeCache) put(ctx context.Context, tree []TreeCategory) {
	if c.client != nil {
		raw, err := json.Marshal(tree)
		if err != nil {
			return
		}
		if err := c.client.Set(ctx, treeCacheKey, raw, c.ttl).Err(); err != nil {
			logrus.WithError(err).Warn("Failed to write taxonomy cache")
		}
		return
	}

	c.mtx.Lock()
	c.local = tree
	c.fetchedAt = time.Now()
	c.mtx.Unlock()
}
