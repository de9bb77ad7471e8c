package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/cache"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/provider"
)

const cacheKey = "catalog:services"

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrInvalidRate     = errors.New("service has no valid rate")
)

type Lister interface {
	Services(ctx context.Context) ([]provider.Service, error)
}

type Service struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	RatePer1000 decimal.Decimal `json:"ratePer1000"`
	Min         int64           `json:"min"`
	Max         int64           `json:"max"`
}

// Catalog resolves provider services and their rates, caching the
// provider's list for ttl.
type Catalog struct {
	provider Lister
	cache    cache.Store
	ttl      time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(p Lister, store cache.Store, ttl time.Duration, log *zap.Logger, m *metrics.Metrics) *Catalog {
	if store == nil {
		store = cache.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{provider: p, cache: store, ttl: ttl, log: log, metrics: m}
}

func (c *Catalog) List(ctx context.Context) ([]Service, error) {
	items, _, err := c.list(ctx)
	return items, err
}

// list reports whether the items came from the cache.
func (c *Catalog) list(ctx context.Context) ([]Service, bool, error) {
	if raw, ok, err := c.cache.Get(ctx, cacheKey); err != nil {
		c.log.Warn("catalog cache read failed", zap.Error(err))
	} else if ok {
		var out []Service
		if err := json.Unmarshal(raw, &out); err == nil {
			c.metrics.CatalogCache("hit")
			return out, true, nil
		}
		c.log.Warn("catalog cache entry is corrupt, refetching")
	}
	c.metrics.CatalogCache("miss")

	items, err := c.provider.Services(ctx)
	if err != nil {
		return nil, false, err
	}
	out := normalize(items)

	if raw, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, cacheKey, raw, c.ttl); err != nil {
			c.log.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return out, false, nil
}

// Lookup returns the service with the given id. A service whose rate is
// missing or not positive yields ErrInvalidRate. An id missing from a
// cached list triggers one refetch, so services added upstream are seen
// before the ttl runs out.
func (c *Catalog) Lookup(ctx context.Context, serviceID int64) (Service, error) {
	items, cached, err := c.list(ctx)
	if err != nil {
		return Service{}, err
	}
	s, err := find(items, serviceID)
	if !errors.Is(err, ErrServiceNotFound) || !cached {
		return s, err
	}
	if err := c.invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidate failed", zap.Error(err))
	}
	if items, _, err = c.list(ctx); err != nil {
		return Service{}, err
	}
	return find(items, serviceID)
}

func (c *Catalog) invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, cacheKey)
}

func find(items []Service, serviceID int64) (Service, error) {
	for _, s := range items {
		if s.ID != serviceID {
			continue
		}
		if !s.RatePer1000.IsPositive() {
			return s, ErrInvalidRate
		}
		return s, nil
	}
	return Service{}, ErrServiceNotFound
}

func normalize(items []provider.Service) []Service {
	out := make([]Service, 0, len(items))
	for _, it := range items {
		id, ok := it.Service.Int64()
		if !ok || id <= 0 {
			continue
		}
		s := Service{ID: id, Name: it.Name, Type: it.Type, Category: it.Category}
		if rate, ok := it.Rate.Decimal(); ok {
			s.RatePer1000 = rate
		}
		s.Min, _ = it.Min.Int64()
		s.Max, _ = it.Max.Int64()
		out = append(out, s)
	}
	return out
}
