package service

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"salesms/backend/internal/cache"
	"salesms/backend/internal/catalog"
	"salesms/backend/internal/domain"
	"salesms/backend/internal/ingest"
	"salesms/backend/internal/query"
	"salesms/backend/internal/store"
	"salesms/backend/internal/store/memory"
)

func twoRecordStore() *memory.Store {
	return memory.NewWithSales([]domain.Sale{
		{TransactionID: "1", CustomerRegion: "North", Age: 30, Quantity: 2, TotalAmount: 100, FinalAmount: 90, Date: domain.NewDate(2023, time.March, 1)},
		{TransactionID: "2", CustomerRegion: "South", Age: 45, Quantity: 1, TotalAmount: 50, FinalAmount: 50, Date: domain.NewDate(2023, time.March, 2)},
	})
}

func newTestService(repo store.Repository) *Service {
	return New(repo, catalog.New(repo, nil, 0, zerolog.Nop()), nil, Options{Logger: zerolog.Nop()})
}

func mustParse(t *testing.T, raw string) query.Request {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query %q: %v", raw, err)
	}
	req, _ := query.ParseRequest(values)
	return req
}

func TestListSalesRegionScenario(t *testing.T) {
	svc := newTestService(twoRecordStore())

	resp, err := svc.ListSales(context.Background(), mustParse(t, "region=North"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].TransactionID != "1" {
		t.Fatalf("expected only record 1, got %+v", resp.Data)
	}
	if resp.Total != 1 || resp.TotalPages != 1 {
		t.Fatalf("unexpected totals %+v", resp)
	}
	want := domain.SalesStats{TotalUnits: 2, TotalAmount: 90, TotalDiscount: 10, Count: 1, DiscountCount: 1}
	if resp.Stats != want {
		t.Fatalf("expected stats %+v, got %+v", want, resp.Stats)
	}
}

func TestListSalesMinAgeScenario(t *testing.T) {
	svc := newTestService(twoRecordStore())

	resp, err := svc.ListSales(context.Background(), mustParse(t, "minAge=40"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].TransactionID != "2" {
		t.Fatalf("expected only record 2, got %+v", resp.Data)
	}
	if resp.Stats.Count != 1 || resp.Stats.TotalDiscount != 0 {
		t.Fatalf("unexpected stats %+v", resp.Stats)
	}
}

func TestListSalesUnknownTagIsEmptyNotError(t *testing.T) {
	svc := newTestService(twoRecordStore())

	resp, err := svc.ListSales(context.Background(), mustParse(t, "tags=vip"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if resp.Data == nil || len(resp.Data) != 0 {
		t.Fatalf("expected empty non-nil data, got %#v", resp.Data)
	}
	if resp.Total != 0 || resp.TotalPages != 0 || resp.Stats != (domain.SalesStats{}) {
		t.Fatalf("expected zero totals, got %+v", resp)
	}
}

func TestListSalesPageBeyondEnd(t *testing.T) {
	repo := memory.NewWithSales([]domain.Sale{
		{TransactionID: "a", Quantity: 1},
		{TransactionID: "b", Quantity: 1},
		{TransactionID: "c", Quantity: 1},
	})
	svc := newTestService(repo)

	resp, err := svc.ListSales(context.Background(), mustParse(t, "page=5&limit=10"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(resp.Data) != 0 || resp.Total != 3 || resp.TotalPages != 1 || resp.Page != 5 || resp.Limit != 10 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListSalesHugePageIsEmpty(t *testing.T) {
	svc := newTestService(memory.NewSeeded())

	resp, err := svc.ListSales(context.Background(), mustParse(t, "page=922337203685477582&limit=10"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(resp.Data) != 0 {
		t.Fatalf("expected no rows past the end, got %d starting at %s", len(resp.Data), resp.Data[0].TransactionID)
	}
	if resp.Total != 12 || resp.Stats.Count != 12 || resp.TotalPages != 2 || resp.Page != 922337203685477582 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListSalesCountMatchesTotalAcrossFilters(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	queries := []string{
		"",
		"region=North,South",
		"gender=Female&minAge=30",
		"category=Electronics&paymentMethod=UPI",
		"tags=premium,kitchen",
		"startDate=2023-05-01&endDate=2023-06-30",
		"search=sh",
		"search=98",
		"minAge=abc&region=West",
	}
	for _, raw := range queries {
		resp, err := svc.ListSales(context.Background(), mustParse(t, raw+"&limit=2"))
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if resp.Stats.Count != resp.Total {
			t.Fatalf("%q: stats.count %d != total %d", raw, resp.Stats.Count, resp.Total)
		}
	}
}

func TestListSalesPagesPartitionMatchingSet(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := context.Background()

	for _, sortBy := range []string{"date", "quantity", "customer_name"} {
		all, err := svc.ListSales(ctx, mustParse(t, "sortBy="+sortBy+"&limit=100"))
		if err != nil {
			t.Fatalf("list all: %v", err)
		}

		var paged []string
		for page := 1; page <= 100; page++ {
			resp, err := svc.ListSales(ctx, mustParse(t, "sortBy="+sortBy+"&limit=5&page="+strconv.Itoa(page)))
			if err != nil {
				t.Fatalf("page %d: %v", page, err)
			}
			for _, sale := range resp.Data {
				paged = append(paged, sale.TransactionID)
			}
			if page >= resp.TotalPages {
				break
			}
		}

		want := make([]string, 0, len(all.Data))
		for _, sale := range all.Data {
			want = append(want, sale.TransactionID)
		}
		if !slices.Equal(paged, want) {
			t.Fatalf("sortBy=%s: pages %v do not reproduce %v", sortBy, paged, want)
		}
	}
}

func TestListSalesIsIdempotent(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	req := mustParse(t, "sortBy=date&limit=4&page=2&gender=Male")

	first, err := svc.ListSales(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.ListSales(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !slices.EqualFunc(first.Data, second.Data, func(a, b domain.Sale) bool { return a.TransactionID == b.TransactionID }) {
		t.Fatalf("expected identical order, got %v and %v", first.Data, second.Data)
	}
	if first.Stats != second.Stats || first.Total != second.Total {
		t.Fatalf("expected identical stats")
	}
}

func TestListSalesRegionUnion(t *testing.T) {
	svc := newTestService(memory.NewSeeded())
	ctx := context.Background()

	north, err := svc.ListSales(ctx, mustParse(t, "region=North&limit=100"))
	if err != nil {
		t.Fatalf("north: %v", err)
	}
	south, err := svc.ListSales(ctx, mustParse(t, "region=South&limit=100"))
	if err != nil {
		t.Fatalf("south: %v", err)
	}
	both, err := svc.ListSales(ctx, mustParse(t, "region=North&region=South&limit=100"))
	if err != nil {
		t.Fatalf("both: %v", err)
	}
	if both.Total != north.Total+south.Total {
		t.Fatalf("expected union total %d, got %d", north.Total+south.Total, both.Total)
	}
	if both.Stats.TotalUnits != north.Stats.TotalUnits+south.Stats.TotalUnits {
		t.Fatalf("expected union units to add up")
	}
}

func TestListSalesAgeBoundsAreInclusive(t *testing.T) {
	svc := newTestService(twoRecordStore())

	resp, err := svc.ListSales(context.Background(), mustParse(t, "minAge=30&maxAge=45"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected both boundary records, got %d", resp.Total)
	}
	resp, err = svc.ListSales(context.Background(), mustParse(t, "minAge=31&maxAge=44"))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected no records inside open bounds, got %d", resp.Total)
	}
}

func TestListSalesWaitsForGate(t *testing.T) {
	repo := twoRecordStore()
	gate := ingest.NewGate()
	loader := ingest.NewLoader(repo, gate, 0, zerolog.Nop())
	svc := New(repo, catalog.New(repo, nil, 0, zerolog.Nop()), loader, Options{
		ReadyTimeout: 20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	if _, err := svc.ListSales(context.Background(), query.Request{}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		gate.MarkReady()
	}()
	svc.readyTimeout = time.Second
	if _, err := svc.ListSales(context.Background(), query.Request{}); err != nil {
		t.Fatalf("expected query to run once the gate opens, got %v", err)
	}
}

func TestListSalesAfterFailedLoadIsUnavailable(t *testing.T) {
	repo := twoRecordStore()
	gate := ingest.NewGate()
	gate.Fail(errors.New("csv missing"))
	svc := New(repo, catalog.New(repo, nil, 0, zerolog.Nop()), ingest.NewLoader(repo, gate, 0, zerolog.Nop()), Options{Logger: zerolog.Nop()})

	if _, err := svc.ListSales(context.Background(), query.Request{}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.FilterOptions(context.Background()); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for filters, got %v", err)
	}
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Snapshot(context.Context, func(store.Reader) error) error {
	return store.Unavailable("begin snapshot", errors.New("connection refused"))
}

func TestListSalesSurfacesStoreUnavailable(t *testing.T) {
	svc := newTestService(failingStore{Store: memory.NewSeeded()})
	if _, err := svc.ListSales(context.Background(), query.Request{}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type recordingCache struct {
	mu   sync.Mutex
	data map[string]domain.SalesResponse
	gets int
	hits int
}

func (c *recordingCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	resp, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	*dest.(*domain.SalesResponse) = resp
	return true, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resp, ok := value.(domain.SalesResponse); ok {
		c.data[key] = resp
	}
	return nil
}

func (c *recordingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestSalesCacheInvalidatedByImport(t *testing.T) {
	repo := twoRecordStore()
	responses := &recordingCache{data: map[string]domain.SalesResponse{}}
	loader := ingest.NewLoader(repo, ingest.NewOpenGate(), 0, zerolog.Nop())
	svc := New(repo, catalog.New(repo, cache.Noop{}, 0, zerolog.Nop()), loader, Options{
		Cache:    responses,
		CacheTTL: time.Minute,
		Logger:   zerolog.Nop(),
	})
	ctx := context.Background()

	if _, err := svc.ListSales(ctx, query.Request{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	cached, err := svc.ListSales(ctx, query.Request{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if responses.hits != 1 || cached.Total != 2 {
		t.Fatalf("expected second call served from cache, hits=%d total=%d", responses.hits, cached.Total)
	}

	csv := "transaction_id,customer_region,quantity\n3,East,4\n"
	if _, err := loader.Import(ctx, strings.NewReader(csv), "extra.csv"); err != nil {
		t.Fatalf("import: %v", err)
	}

	fresh, err := svc.ListSales(ctx, query.Request{})
	if err != nil {
		t.Fatalf("after import: %v", err)
	}
	if fresh.Total != 3 {
		t.Fatalf("expected import to invalidate cached responses, got total %d", fresh.Total)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	svc := newTestService(memory.NewSeeded())

	if _, err := svc.RefreshFilters(context.Background()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.StartImport(context.Background()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	opts, err := svc.RefreshFilters(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(opts.Regions) != 5 {
		t.Fatalf("unexpected regions %v", opts.Regions)
	}
	if err := svc.StartImport(ctx); !errors.Is(err, ErrNoImportFile) {
		t.Fatalf("expected ErrNoImportFile without a loader, got %v", err)
	}
	status, err := svc.ImportStatus(ctx)
	if err != nil || status.State != domain.ImportIdle {
		t.Fatalf("unexpected import status %+v (%v)", status, err)
	}
}

func TestFilterOptionsAreSorted(t *testing.T) {
	svc := newTestService(memory.NewSeeded())

	opts, err := svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("filter options: %v", err)
	}
	for name, values := range map[string][]string{
		"regions":        opts.Regions,
		"genders":        opts.Genders,
		"categories":     opts.Categories,
		"paymentMethods": opts.PaymentMethods,
		"tags":           opts.Tags,
	} {
		if len(values) == 0 || !slices.IsSorted(values) {
			t.Fatalf("%s: expected non-empty sorted values, got %v", name, values)
		}
	}
}
