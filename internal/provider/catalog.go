package provider

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/llmrouter/gateway/internal/router"
	"github.com/llmrouter/gateway/internal/unified"
)

// Catalog owns one driver's model list cache (spec.md §4.4): a single
// last_good result, updated on every successful discovery and served
// verbatim on upstream failure. It is never invalidated by time.
type Catalog struct {
	mu       sync.Mutex
	driver   Driver
	name     string
	pattern  *regexp.Regexp
	manager  *router.ModelManager
	lastGood []unified.Model
}

// NewCatalog builds a Catalog for one configured provider. pattern may be
// nil, in which case upstream discovery is skipped entirely (spec.md §4.3
// "absent pattern ⇒ no discovery") and the catalog is just the provider's
// explicitly configured aliases.
func NewCatalog(driver Driver, name string, pattern *regexp.Regexp, manager *router.ModelManager) *Catalog {
	return &Catalog{driver: driver, name: name, pattern: pattern, manager: manager}
}

// List returns the union of upstream-discovered models (filtered by the
// provider's model_pattern) and its explicitly configured aliases, each
// rewritten as "{provider}/{alias}" (spec.md §4.3 "Catalog aggregation").
// On upstream failure it serves the last successful result in its entirety
// (stale-on-error); only a first-ever failure with no cache propagates the
// error.
func (c *Catalog) List(ctx context.Context) ([]unified.Model, error) {
	fresh, err := c.discover(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.lastGood != nil {
			return c.lastGood, nil
		}
		return nil, err
	}

	c.lastGood = fresh
	return fresh, nil
}

func (c *Catalog) discover(ctx context.Context) ([]unified.Model, error) {
	var models []unified.Model

	if c.pattern != nil {
		upstream, err := c.driver.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range upstream {
			if c.pattern.MatchString(m.ID) {
				models = append(models, m)
			}
		}
	}

	aliases := c.manager.ConfiguredAliases()
	sort.Strings(aliases)
	for _, alias := range aliases {
		models = append(models, unified.Model{ID: c.name + "/" + alias})
	}

	return models, nil
}
