package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/query"
	"salesms/backend/internal/store"
)

// Store keeps sales in an append-only slice. Records are never mutated once
// appended, so any prefix of the slice is an immutable snapshot.
type Store struct {
	mu    sync.RWMutex
	sales []domain.Sale
	ids   map[string]struct{}
}

func New() *Store {
	return &Store{
		sales: make([]domain.Sale, 0, 1024),
		ids:   make(map[string]struct{}, 1024),
	}
}

func NewWithSales(sales []domain.Sale) *Store {
	s := New()
	_, _ = s.InsertSales(context.Background(), sales)
	return s
}

func NewSeeded() *Store {
	return NewWithSales(seedSales())
}

func (s *Store) view() view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.sales)
	return view{sales: s.sales[:n:n]}
}

func (s *Store) Snapshot(ctx context.Context, fn func(r store.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.view())
}

func (s *Store) FindSales(ctx context.Context, filter domain.SaleFilter, sort domain.SortKey, offset int, limit int) ([]domain.Sale, error) {
	return s.view().FindSales(ctx, filter, sort, offset, limit)
}

func (s *Store) CountSales(ctx context.Context, filter domain.SaleFilter) (int64, error) {
	return s.view().CountSales(ctx, filter)
}

func (s *Store) AggregateSales(ctx context.Context, filter domain.SaleFilter) (domain.SalesAggregate, error) {
	return s.view().AggregateSales(ctx, filter)
}

func (s *Store) DistinctValues(ctx context.Context, field store.Field) ([]string, error) {
	if !field.Valid() {
		return nil, store.ErrInvalidField
	}
	v := s.view()
	seen := make(map[string]struct{}, 16)
	values := make([]string, 0, 16)
	for i := range v.sales {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		value := fieldValue(v.sales[i], field)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	slices.Sort(values)
	return values, nil
}

func (s *Store) TagLists(ctx context.Context) ([]string, error) {
	v := s.view()
	seen := make(map[string]struct{}, 64)
	lists := make([]string, 0, 64)
	for i := range v.sales {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := v.sales[i].Tags
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		lists = append(lists, raw)
	}
	return lists, nil
}

func (s *Store) InsertSales(ctx context.Context, sales []domain.Sale) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, sale := range sales {
		if sale.TransactionID == "" {
			continue
		}
		if _, exists := s.ids[sale.TransactionID]; exists {
			continue
		}
		sale.Tags = domain.NormalizeTags(sale.Tags)
		s.ids[sale.TransactionID] = struct{}{}
		s.sales = append(s.sales, sale)
		inserted++
	}
	return inserted, nil
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sales)
}

type view struct {
	sales []domain.Sale
}

func (v view) matching(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0, 64)
	for i := range v.sales {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if query.Match(filter, v.sales[i]) {
			out = append(out, v.sales[i])
		}
	}
	return out, nil
}

func (v view) FindSales(ctx context.Context, filter domain.SaleFilter, sort domain.SortKey, offset int, limit int) ([]domain.Sale, error) {
	matched, err := v.matching(ctx, filter)
	if err != nil {
		return nil, err
	}
	query.SortSales(matched, sort)
	page := query.Window(matched, offset, limit)
	return slices.Clone(page), nil
}

func (v view) CountSales(ctx context.Context, filter domain.SaleFilter) (int64, error) {
	if filter.IsZero() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return int64(len(v.sales)), nil
	}
	var count int64
	for i := range v.sales {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if query.Match(filter, v.sales[i]) {
			count++
		}
	}
	return count, nil
}

func (v view) AggregateSales(ctx context.Context, filter domain.SaleFilter) (domain.SalesAggregate, error) {
	agg := domain.SalesAggregate{Amount: decimal.Zero, Discount: decimal.Zero}
	for i := range v.sales {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.SalesAggregate{}, err
			}
		}
		sale := v.sales[i]
		if !query.Match(filter, sale) {
			continue
		}
		total := decimal.NewFromFloat(sale.TotalAmount)
		final := decimal.NewFromFloat(sale.FinalAmount)

		agg.Count++
		agg.Units += int64(sale.Quantity)
		agg.Amount = agg.Amount.Add(final)
		agg.Discount = agg.Discount.Add(total.Sub(final))
		if total.GreaterThan(final) {
			agg.DiscountedCount++
		}
	}
	return agg, nil
}

func fieldValue(sale domain.Sale, field store.Field) string {
	switch field {
	case store.FieldRegion:
		return sale.CustomerRegion
	case store.FieldGender:
		return sale.Gender
	case store.FieldCategory:
		return sale.ProductCategory
	case store.FieldPaymentMethod:
		return sale.PaymentMethod
	}
	return ""
}
