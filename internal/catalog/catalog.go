// Package catalog serves the distinct values that drive the dashboard's
// filter dropdowns. The snapshot is computed lazily once per process and kept
// until Invalidate is called.
package catalog

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"salesms/backend/internal/cache"
	"salesms/backend/internal/domain"
	"salesms/backend/internal/metrics"
	"salesms/backend/internal/store"
)

const (
	sharedKey   = "catalog:filters"
	loadTimeout = 30 * time.Second
)

type Source interface {
	DistinctValues(ctx context.Context, field store.Field) ([]string, error)
	TagLists(ctx context.Context) ([]string, error)
}

type Catalog struct {
	source     Source
	shared     cache.Store
	sharedTTL  time.Duration
	logger     zerolog.Logger
	current    atomic.Pointer[domain.FilterOptions]
	generation atomic.Uint64
	group      singleflight.Group
}

// New builds a catalog over source. shared is an optional cross-process tier
// (Redis); a nil shared cache disables it.
func New(source Source, shared cache.Store, sharedTTL time.Duration, logger zerolog.Logger) *Catalog {
	if shared == nil {
		shared = cache.Noop{}
	}
	if sharedTTL <= 0 {
		sharedTTL = 10 * time.Minute
	}
	return &Catalog{
		source:    source,
		shared:    shared,
		sharedTTL: sharedTTL,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
}

// Get returns the cached snapshot, populating it on first use. Concurrent
// first callers share one load. A caller that gives up does not cancel the
// load for the others, and a failed load publishes nothing.
func (c *Catalog) Get(ctx context.Context) (domain.FilterOptions, error) {
	if snap := c.current.Load(); snap != nil {
		metrics.CacheLookups.WithLabelValues("catalog", "hit").Inc()
		return *snap, nil
	}
	metrics.CacheLookups.WithLabelValues("catalog", "miss").Inc()

	gen := c.generation.Load()
	ch := c.group.DoChan("filters:"+strconv.FormatUint(gen, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		opts, err := c.load(loadCtx)
		if err != nil {
			return nil, err
		}
		// An Invalidate that raced with this load wins; the result is still
		// returned to the waiters but is not kept.
		if c.generation.Load() == gen {
			c.current.Store(&opts)
		}
		return opts, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.FilterOptions{}, res.Err
		}
		return res.Val.(domain.FilterOptions), nil
	case <-ctx.Done():
		return domain.FilterOptions{}, ctx.Err()
	}
}

// Invalidate drops the in-process and shared snapshots; the next Get rebuilds.
func (c *Catalog) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.current.Store(nil)
	if err := c.shared.Delete(ctx, sharedKey); err != nil {
		c.logger.Warn().Err(err).Msg("failed to delete shared catalog")
		return err
	}
	c.logger.Info().Msg("catalog invalidated")
	return nil
}

func (c *Catalog) load(ctx context.Context) (domain.FilterOptions, error) {
	var cached domain.FilterOptions
	ok, err := c.shared.Get(ctx, sharedKey, &cached)
	if err != nil {
		c.logger.Warn().Err(err).Msg("shared catalog read failed, rebuilding from store")
	}
	if ok {
		return cached, nil
	}

	started := time.Now()
	opts, err := Build(ctx, c.source)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	c.logger.Info().
		Int("regions", len(opts.Regions)).
		Int("tags", len(opts.Tags)).
		Dur("took", time.Since(started)).
		Msg("catalog built")

	if err := c.shared.Set(ctx, sharedKey, opts, c.sharedTTL); err != nil {
		c.logger.Warn().Err(err).Msg("shared catalog write failed")
	}
	return opts, nil
}

// Build computes the catalog directly from source without caching.
func Build(ctx context.Context, source Source) (domain.FilterOptions, error) {
	var opts domain.FilterOptions
	targets := []struct {
		field store.Field
		dest  *[]string
	}{
		{store.FieldRegion, &opts.Regions},
		{store.FieldGender, &opts.Genders},
		{store.FieldCategory, &opts.Categories},
		{store.FieldPaymentMethod, &opts.PaymentMethods},
	}
	for _, target := range targets {
		values, err := source.DistinctValues(ctx, target.field)
		if err != nil {
			return domain.FilterOptions{}, err
		}
		*target.dest = sortedSet(values)
	}

	lists, err := source.TagLists(ctx)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	tags := make([]string, 0, len(lists))
	for _, raw := range lists {
		tags = append(tags, domain.SplitTags(raw)...)
	}
	opts.Tags = sortedSet(tags)

	return opts, nil
}

func sortedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
