package fooddata

import (
	"context"
	"log/slog"
	"strings"

	"mealwise"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query names a food, a barcode, or both.
type Query struct {
	Name    string `json:"name,omitempty"`
	Barcode string `json:"barcode,omitempty"`
}

// Key is the cache key: the normalized name when present, else the barcode.
func (q Query) Key() string {
	if k := normalizeKey(q.Name); k != "" {
		return k
	}
	return strings.TrimSpace(q.Barcode)
}

// Resolver chains cache, primary source and fallback source.
type Resolver struct {
	primary  NameSource
	fallback FallbackSource
	cache    *Cache

	lookups metric.Int64Counter
}

func NewResolver(primary NameSource, fallback FallbackSource, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}

	meter := otel.GetMeterProvider().Meter(mealwise.TracerNameResolver)
	lookups, err := meter.Int64Counter(
		"resolver_lookups_total",
		metric.WithDescription("Food-data resolutions by outcome (cache_hit, primary, fallback, barcode, not_found)"),
	)
	if err != nil {
		slog.Warn("RESOLVER: Failed to create lookup counter", "error", err)
	}

	return &Resolver{
		primary:  primary,
		fallback: fallback,
		cache:    cache,
		lookups:  lookups,
	}
}

// Resolve wraps Lookup in the agent result contract.
func (r *Resolver) Resolve(ctx context.Context, q Query) mealwise.AgentResult[mealwise.NutritionEstimate] {
	return mealwise.Invoke("resolver.resolve", func() (mealwise.NutritionEstimate, float64, error) {
		est, err := r.Lookup(ctx, q)
		if err != nil {
			return est, 0, err
		}
		return est, sourceConfidence(est.Source), nil
	})
}

// Lookup resolves q, short-circuiting on the first hit: cache, primary by
// name, fallback by name, fallback by barcode. Successful lookups are cached.
func (r *Resolver) Lookup(ctx context.Context, q Query) (mealwise.NutritionEstimate, error) {
	key := q.Key()
	if key == "" {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("resolver.lookup", "empty query")
	}

	if est, ok := r.cache.Get(key); ok {
		slog.Info("RESOLVER: Cache hit", "key", key, "source", est.Source)
		r.count(ctx, "cache_hit")
		est.CacheHit = true
		return est, nil
	}

	name := strings.TrimSpace(q.Name)
	if name != "" && r.primary != nil {
		est, err := r.primary.LookupByName(ctx, name)
		if err == nil && est.IsValid() {
			return r.store(ctx, key, est, "primary"), nil
		}
		r.logMiss("primary", name, err)
	}

	if name != "" && r.fallback != nil {
		est, err := r.fallback.LookupByName(ctx, name)
		if err == nil && est.IsValid() {
			return r.store(ctx, key, est, "fallback"), nil
		}
		r.logMiss("fallback", name, err)
	}

	if code := strings.TrimSpace(q.Barcode); code != "" && r.fallback != nil {
		est, err := r.fallback.LookupByBarcode(ctx, code)
		if err == nil && est.IsValid() {
			return r.store(ctx, key, est, "barcode"), nil
		}
		r.logMiss("barcode", code, err)
	}

	r.count(ctx, "not_found")
	return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("resolver.lookup", key)
}

func (r *Resolver) store(ctx context.Context, key string, est mealwise.NutritionEstimate, outcome string) mealwise.NutritionEstimate {
	r.cache.Put(key, est)
	r.count(ctx, outcome)
	slog.Info("RESOLVER: Resolved", "key", key, "outcome", outcome, "source", est.Source)
	est.CacheHit = false
	return est
}

func (r *Resolver) logMiss(step, query string, err error) {
	if err == nil || mealwise.IsKind(err, mealwise.ErrNotFound) {
		slog.Info("RESOLVER: Miss", "step", step, "query", query)
		return
	}
	slog.Warn("RESOLVER: Source failed", "step", step, "query", query, "error", err)
}

func (r *Resolver) count(ctx context.Context, outcome string) {
	if r.lookups == nil {
		return
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func sourceConfidence(s mealwise.Source) float64 {
	switch s {
	case mealwise.SourcePrimary:
		return 0.9
	case mealwise.SourceFallback:
		return 0.7
	case mealwise.SourceSyntheticBarcode:
		return 0.5
	}
	return 0.2
}
