package storage

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"talk2data/internal/domain"
	"talk2data/internal/schema"
)

var _ domain.SchemaStore = (*Cache)(nil)

// Cache is a read-through cache of parsed schema documents in front of a
// SchemaStore. Concurrent misses for the same key share one fetch and parse.
type Cache struct {
	store  domain.SchemaStore
	logger *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	docs  map[string]*schema.Document
	gen   map[string]uint64
}

// NewCache wraps store.
func NewCache(store domain.SchemaStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		logger: logger.With("component", "schema-cache"),
		docs:   make(map[string]*schema.Document),
		gen:    make(map[string]uint64),
	}
}

func cacheKey(user, name string) string { return user + "\x00" + name }

// Document returns the parsed schema for (user, name).
func (c *Cache) Document(ctx context.Context, user, name string) (*schema.Document, error) {
	key := cacheKey(user, name)
	c.mu.RLock()
	doc, ok := c.docs[key]
	gen := c.gen[key]
	c.mu.RUnlock()
	if ok {
		return doc, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		raw, err := c.store.Get(ctx, user, name)
		if err != nil {
			return nil, err
		}
		doc, err := schema.LoadWithLogger(raw, c.logger)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// A Put or Delete during the fetch bumps the generation; the stale
		// result is returned to this caller but not cached.
		if c.gen[key] == gen {
			c.docs[key] = doc
		}
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("schema load shared", "user", user, "schema", name)
	}
	return v.(*schema.Document), nil
}

// Put validates raw (JSON or YAML), stores it as JSON and invalidates the
// cached entry.
func (c *Cache) Put(ctx context.Context, user, name string, raw []byte) error {
	data, err := schema.ToJSON(raw)
	if err != nil {
		return err
	}
	if _, err := schema.LoadWithLogger(data, c.logger); err != nil {
		return err
	}
	if err := c.store.Put(ctx, user, name, data); err != nil {
		return err
	}
	c.invalidate(user, name)
	return nil
}

// Get returns the stored document bytes.
func (c *Cache) Get(ctx context.Context, user, name string) ([]byte, error) {
	return c.store.Get(ctx, user, name)
}

// List returns the user's schema names.
func (c *Cache) List(ctx context.Context, user string) ([]string, error) {
	return c.store.List(ctx, user)
}

// Delete removes the document and its cached entry.
func (c *Cache) Delete(ctx context.Context, user, name string) error {
	if err := c.store.Delete(ctx, user, name); err != nil {
		return err
	}
	c.invalidate(user, name)
	return nil
}

func (c *Cache) invalidate(user, name string) {
	key := cacheKey(user, name)
	c.mu.Lock()
	delete(c.docs, key)
	c.gen[key]++
	c.mu.Unlock()
}
