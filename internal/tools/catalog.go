package tools

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"seedforge/internal/logging"
)

const catalogCacheKey = "catalog"

// Catalog caches the live tool list and validates declared tool requirements
// against it. The cache holds one entry with a 5 minute TTL; concurrent
// readers share the cached snapshot while a single fetch refreshes it.
type Catalog struct {
	client Client
	cache  *expirable.LRU[string, []ToolDesc]
	logger logging.Logger
}

// NewCatalog wraps a tool client with a TTL-cached catalog view.
func NewCatalog(client Client) *Catalog {
	return &Catalog{
		client: client,
		cache:  expirable.NewLRU[string, []ToolDesc](1, nil, 5*time.Minute),
		logger: logging.NewComponentLogger("tool-catalog"),
	}
}

// List returns the cached catalog, refreshing it when expired.
func (c *Catalog) List(ctx context.Context) ([]ToolDesc, error) {
	if cached, ok := c.cache.Get(catalogCacheKey); ok {
		return cached, nil
	}
	descs, err := c.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(catalogCacheKey, descs)
	return descs, nil
}

// Names returns the set of live tool names, or nil when the catalog is
// unreachable.
func (c *Catalog) Names(ctx context.Context) map[string]struct{} {
	descs, err := c.List(ctx)
	if err != nil {
		c.logger.Warn("tool catalog unavailable: %v", err)
		return nil
	}
	names := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		names[d.Name] = struct{}{}
	}
	return names
}

// Validate intersects declared tools with the live catalog. Unknown tools are
// substituted with mapped fallbacks when the fallback exists in the catalog;
// tools with no valid substitute are dropped. When the catalog is unreachable
// the declared list is validated against the known realistic set instead.
func (c *Catalog) Validate(ctx context.Context, declared []string) []string {
	live := c.Names(ctx)

	var out []string
	seen := make(map[string]struct{}, len(declared))
	keep := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, name := range declared {
		switch {
		case live == nil:
			if IsRealisticTool(name) {
				keep(name)
			} else if fb := Fallback(name); fb != "" {
				keep(fb)
			}
		default:
			if _, ok := live[name]; ok {
				keep(name)
				continue
			}
			if fb := Fallback(name); fb != "" {
				if _, ok := live[fb]; ok {
					keep(fb)
					continue
				}
			}
			c.logger.Debug("dropping unknown tool %q", name)
		}
	}
	return out
}
