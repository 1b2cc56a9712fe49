package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/store"
)

func TestSnapshotAggregateMatchesPage(t *testing.T) {
	databaseURL := os.Getenv("SALESMS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALESMS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	region := fmt.Sprintf("IT-Region-%d", stamp)
	ids := []string{
		fmt.Sprintf("it-%d-a", stamp),
		fmt.Sprintf("it-%d-b", stamp),
		fmt.Sprintf("it-%d-c", stamp),
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_region = $1`, region)
	})

	day := domain.NewDate(2023, time.March, 1)
	inserted, err := s.InsertSales(ctx, []domain.Sale{
		{TransactionID: ids[0], Date: day, CustomerRegion: region, Quantity: 2, TotalAmount: 100, FinalAmount: 90, Tags: "vip, new"},
		{TransactionID: ids[1], Date: day, CustomerRegion: region, Quantity: 1, TotalAmount: 50, FinalAmount: 50},
		{TransactionID: ids[2], Date: day, CustomerRegion: region, Quantity: 3, TotalAmount: 30.5, FinalAmount: 30},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("expected 3 inserted, got %d", inserted)
	}

	again, err := s.InsertSales(ctx, []domain.Sale{{TransactionID: ids[0], CustomerRegion: region}})
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected duplicate id to be skipped, got %d inserted", again)
	}

	filter := domain.SaleFilter{Regions: []string{region}}
	var (
		page []domain.Sale
		agg  domain.SalesAggregate
	)
	err = s.Snapshot(ctx, func(r store.Reader) error {
		var err error
		if page, err = r.FindSales(ctx, filter, domain.SortByDate, 0, 2); err != nil {
			return err
		}
		agg, err = r.AggregateSales(ctx, filter)
		return err
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if len(page) != 2 || page[0].TransactionID != ids[0] || page[1].TransactionID != ids[1] {
		t.Fatalf("expected tie on date to break by transaction id, got %+v", page)
	}
	if agg.Count != 3 || agg.Units != 6 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if got := agg.Stats().TotalDiscount; got != 10.5 {
		t.Fatalf("expected discount 10.5, got %v", got)
	}

	tagged, err := s.CountSales(ctx, domain.SaleFilter{Regions: []string{region}, Tags: []string{"new"}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if tagged != 1 {
		t.Fatalf("expected 1 record tagged new, got %d", tagged)
	}
}
