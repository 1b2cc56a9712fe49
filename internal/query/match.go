package query

import (
	"strings"

	"salesms/backend/internal/domain"
)

// Match reports whether sale satisfies filter. Values inside one field are
// OR-combined; fields are AND-combined.
func Match(filter domain.SaleFilter, sale domain.Sale) bool {
	if filter.Search != "" {
		term := domain.FoldCase(filter.Search)
		if !strings.Contains(domain.FoldCase(sale.CustomerName), term) &&
			!strings.Contains(domain.FoldCase(sale.PhoneNumber), term) {
			return false
		}
	}
	if !oneOf(filter.Regions, sale.CustomerRegion) ||
		!oneOf(filter.Genders, sale.Gender) ||
		!oneOf(filter.Categories, sale.ProductCategory) ||
		!oneOf(filter.PaymentMethods, sale.PaymentMethod) {
		return false
	}
	if filter.MinAge != nil && sale.Age < *filter.MinAge {
		return false
	}
	if filter.MaxAge != nil && sale.Age > *filter.MaxAge {
		return false
	}
	// An undated record never satisfies a date bound.
	if (filter.StartDate != nil || filter.EndDate != nil) && sale.Date.IsZero() {
		return false
	}
	if filter.StartDate != nil && sale.Date.Compare(*filter.StartDate) < 0 {
		return false
	}
	if filter.EndDate != nil && sale.Date.Compare(*filter.EndDate) > 0 {
		return false
	}
	if len(filter.Tags) > 0 && !intersects(filter.Tags, sale.TagSet()) {
		return false
	}
	return true
}

func oneOf(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == value {
			return true
		}
	}
	return false
}

func intersects(wanted []string, have []string) bool {
	for _, tag := range have {
		if oneOf(wanted, tag) {
			return true
		}
	}
	return false
}
