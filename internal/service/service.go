package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"salesms/backend/internal/cache"
	"salesms/backend/internal/catalog"
	"salesms/backend/internal/domain"
	"salesms/backend/internal/ingest"
	"salesms/backend/internal/metrics"
	"salesms/backend/internal/query"
	"salesms/backend/internal/store"
)

var (
	// ErrNotReady means the initial load has not finished; callers may retry.
	ErrNotReady     = errors.New("sales data is still loading")
	ErrForbidden    = errors.New("admin role required")
	ErrNoImportFile = errors.New("no csv import file configured")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Cache holds whole sales responses for CacheTTL. Zero TTL disables it.
	Cache        cache.Store
	CacheTTL     time.Duration
	ReadyTimeout time.Duration
	ImportFile   string
	Logger       zerolog.Logger
}

type Service struct {
	repo         store.Repository
	catalog      *catalog.Catalog
	loader       *ingest.Loader
	gate         *ingest.Gate
	cache        cache.Store
	cacheTTL     time.Duration
	readyTimeout time.Duration
	importFile   string
	generation   atomic.Uint64
	logger       zerolog.Logger
}

// New wires the query side over repo. A nil loader means the store is already
// complete and the readiness gate starts open.
func New(repo store.Repository, filters *catalog.Catalog, loader *ingest.Loader, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	gate := ingest.NewOpenGate()
	if loader != nil {
		gate = loader.Gate()
	}

	s := &Service{
		repo:         repo,
		catalog:      filters,
		loader:       loader,
		gate:         gate,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		readyTimeout: opts.ReadyTimeout,
		importFile:   opts.ImportFile,
		logger:       opts.Logger.With().Str("component", "service").Logger(),
	}
	if loader != nil {
		loader.OnComplete(func(ctx context.Context, _ domain.ImportStatus) {
			s.invalidate(ctx)
		})
	}
	return s
}

// ListSales returns one page of matching records together with statistics over
// the whole matching set. Both are read from the same store snapshot, so
// stats.count always equals total.
func (s *Service) ListSales(ctx context.Context, req query.Request) (domain.SalesResponse, error) {
	req = req.Normalize()
	if err := s.waitReady(ctx); err != nil {
		return domain.SalesResponse{}, err
	}

	key := s.salesCacheKey(req)
	if s.cacheTTL > 0 {
		var cached domain.SalesResponse
		ok, err := s.cache.Get(ctx, key, &cached)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("sales", "error").Inc()
			s.logger.Warn().Err(err).Msg("sales cache read failed")
		case ok:
			metrics.CacheLookups.WithLabelValues("sales", "hit").Inc()
			return cached, nil
		default:
			metrics.CacheLookups.WithLabelValues("sales", "miss").Inc()
		}
	}

	started := time.Now()
	var (
		page []domain.Sale
		agg  domain.SalesAggregate
	)
	err := s.repo.Snapshot(ctx, func(r store.Reader) error {
		var err error
		agg, err = r.AggregateSales(ctx, req.Filter)
		if err != nil {
			return err
		}
		if int64(req.Offset()) >= agg.Count {
			return nil
		}
		page, err = r.FindSales(ctx, req.Filter, req.Sort, req.Offset(), req.Limit)
		return err
	})
	metrics.QueryDuration.WithLabelValues("list_sales").Observe(time.Since(started).Seconds())
	if err != nil {
		return domain.SalesResponse{}, err
	}
	if page == nil {
		page = []domain.Sale{}
	}

	resp := domain.SalesResponse{
		Data:       page,
		Stats:      agg.Stats(),
		Total:      agg.Count,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: query.TotalPages(agg.Count, req.Limit),
	}

	if s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("sales cache write failed")
		}
	}
	return resp, nil
}

func (s *Service) FilterOptions(ctx context.Context) (domain.FilterOptions, error) {
	if err := s.waitReady(ctx); err != nil {
		return domain.FilterOptions{}, err
	}
	started := time.Now()
	opts, err := s.catalog.Get(ctx)
	metrics.QueryDuration.WithLabelValues("filter_options").Observe(time.Since(started).Seconds())
	return opts, err
}

// RefreshFilters drops every cached view of the data and rebuilds the catalog.
func (s *Service) RefreshFilters(ctx context.Context) (domain.FilterOptions, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.FilterOptions{}, err
	}
	if err := s.waitReady(ctx); err != nil {
		return domain.FilterOptions{}, err
	}
	s.invalidate(ctx)
	return s.catalog.Get(ctx)
}

// StartImport re-imports the configured CSV in the background.
func (s *Service) StartImport(ctx context.Context) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if s.loader == nil || s.importFile == "" {
		return ErrNoImportFile
	}
	if err := s.loader.Start(ctx, s.importFile); err != nil {
		return err
	}
	actor, _ := ActorFromContext(ctx)
	s.logger.Info().Str("actor", actor.Username).Str("file", s.importFile).Msg("import started")
	return nil
}

func (s *Service) ImportStatus(ctx context.Context) (domain.ImportStatus, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ImportStatus{}, err
	}
	if s.loader == nil {
		return domain.ImportStatus{State: domain.ImportIdle}, nil
	}
	return s.loader.Status(), nil
}

func (s *Service) Ready() bool {
	return s.gate.Ready()
}

func (s *Service) waitReady(ctx context.Context) error {
	if s.gate.Ready() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()

	err := s.gate.Wait(waitCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return ErrNotReady
	case errors.Is(err, store.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("initial load failed: %w", errors.Join(store.ErrUnavailable, err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	s.generation.Add(1)
	if err := s.catalog.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("catalog invalidation incomplete")
	}
}

func (s *Service) salesCacheKey(req query.Request) string {
	return "sales:" + strconv.FormatUint(s.generation.Load(), 10) + ":" + req.CacheKey()
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}
