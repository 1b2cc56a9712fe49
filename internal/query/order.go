package query

import (
	"cmp"
	"slices"
	"strings"

	"salesms/backend/internal/domain"
)

// NewComparator returns the ordering for key with transaction_id ascending as
// the tie-break, so equal sort keys never shuffle between pages. Names compare
// by the byte order of their folded form, the same key the SQL stores sort by.
func NewComparator(key domain.SortKey) func(a, b domain.Sale) int {
	switch domain.ParseSortKey(string(key)) {
	case domain.SortByQuantity:
		return func(a, b domain.Sale) int {
			if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
				return c
			}
			return strings.Compare(a.TransactionID, b.TransactionID)
		}
	case domain.SortByCustomerName:
		return func(a, b domain.Sale) int {
			if c := strings.Compare(domain.FoldCase(a.CustomerName), domain.FoldCase(b.CustomerName)); c != 0 {
				return c
			}
			return strings.Compare(a.TransactionID, b.TransactionID)
		}
	default:
		return func(a, b domain.Sale) int {
			if c := b.Date.Compare(a.Date); c != 0 {
				return c
			}
			return strings.Compare(a.TransactionID, b.TransactionID)
		}
	}
}

// SortSales orders sales in place. Name keys are folded once up front rather
// than on every comparison.
func SortSales(sales []domain.Sale, key domain.SortKey) {
	if domain.ParseSortKey(string(key)) != domain.SortByCustomerName {
		slices.SortFunc(sales, NewComparator(key))
		return
	}
	type keyed struct {
		name string
		sale domain.Sale
	}
	rows := make([]keyed, len(sales))
	for i, sale := range sales {
		rows[i] = keyed{name: domain.FoldCase(sale.CustomerName), sale: sale}
	}
	slices.SortFunc(rows, func(a, b keyed) int {
		if c := strings.Compare(a.name, b.name); c != 0 {
			return c
		}
		return strings.Compare(a.sale.TransactionID, b.sale.TransactionID)
	})
	for i := range rows {
		sales[i] = rows[i].sale
	}
}

// Window returns the [offset, offset+limit) slice of sorted, clipped to bounds.
// A negative offset is not a valid window and yields an empty page.
func Window(sorted []domain.Sale, offset int, limit int) []domain.Sale {
	if offset < 0 || offset >= len(sorted) || limit < 1 {
		return []domain.Sale{}
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}
