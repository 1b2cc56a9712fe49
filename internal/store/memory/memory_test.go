package memory

import (
	"context"
	"errors"
	"testing"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/store"
)

func TestInsertSalesSkipsDuplicatesAndBlankIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, err := s.InsertSales(ctx, []domain.Sale{
		{TransactionID: "a", Tags: " x , ,y "},
		{TransactionID: "a"},
		{TransactionID: ""},
		{TransactionID: "b"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 || s.Len() != 2 {
		t.Fatalf("expected 2 inserted, got %d (len %d)", n, s.Len())
	}

	n, _ = s.InsertSales(ctx, []domain.Sale{{TransactionID: "a"}, {TransactionID: "c"}})
	if n != 1 || s.Len() != 3 {
		t.Fatalf("expected re-insert to add only c, got %d (len %d)", n, s.Len())
	}

	page, _ := s.FindSales(ctx, domain.SaleFilter{}, domain.SortByDate, 0, 10)
	for _, sale := range page {
		if sale.TransactionID == "a" && sale.Tags != "x,y" {
			t.Fatalf("expected normalized tags, got %q", sale.Tags)
		}
	}
}

func TestSeededAggregate(t *testing.T) {
	s := NewSeeded()
	agg, err := s.AggregateSales(context.Background(), domain.SaleFilter{Regions: []string{"North"}})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// T-0002: 24999 at 5%, T-0006: 3499 at 0%, T-0011: 3999 at 10%.
	stats := agg.Stats()
	if stats.Count != 3 || stats.TotalUnits != 3 || stats.DiscountCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TotalAmount != 30847.15 {
		t.Fatalf("unexpected total amount %v", stats.TotalAmount)
	}
	if stats.TotalDiscount != 1649.85 {
		t.Fatalf("unexpected total discount %v", stats.TotalDiscount)
	}
}

func TestCountSalesUnfilteredAndFiltered(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	all, err := s.CountSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if all != int64(s.Len()) {
		t.Fatalf("expected unfiltered count %d, got %d", s.Len(), all)
	}

	north, err := s.CountSales(ctx, domain.SaleFilter{Regions: []string{"North"}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if north != 3 {
		t.Fatalf("expected 3 North sales, got %d", north)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.CountSales(canceled, domain.SaleFilter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled on unfiltered count, got %v", err)
	}
}

func TestSnapshotIsStableUnderInsert(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.Snapshot(ctx, func(r store.Reader) error {
		before, err := r.CountSales(ctx, domain.SaleFilter{})
		if err != nil {
			return err
		}
		if _, err := s.InsertSales(ctx, []domain.Sale{{TransactionID: "T-9999"}}); err != nil {
			return err
		}
		after, err := r.CountSales(ctx, domain.SaleFilter{})
		if err != nil {
			return err
		}
		if before != after {
			t.Fatalf("snapshot moved from %d to %d", before, after)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.Len() != 13 {
		t.Fatalf("expected insert to land after snapshot, len %d", s.Len())
	}
}

func TestDistinctValuesAndTagLists(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	regions, err := s.DistinctValues(ctx, store.FieldRegion)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(regions) != 5 {
		t.Fatalf("expected 5 regions, got %v", regions)
	}

	if _, err := s.DistinctValues(ctx, store.Field("phone_number")); !errors.Is(err, store.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}

	lists, err := s.TagLists(ctx)
	if err != nil {
		t.Fatalf("tag lists: %v", err)
	}
	seen := map[string]bool{}
	for _, raw := range lists {
		if seen[raw] {
			t.Fatalf("duplicate tag list %q", raw)
		}
		seen[raw] = true
	}
	if !seen["organic,skincare"] {
		t.Fatalf("expected organic,skincare in %v", lists)
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewSeeded()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FindSales(ctx, domain.SaleFilter{}, domain.SortByDate, 0, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := s.Snapshot(ctx, func(store.Reader) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected snapshot to honor cancellation, got %v", err)
	}
}
