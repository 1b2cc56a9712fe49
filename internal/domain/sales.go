package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

type Sale struct {
	TransactionID      string  `json:"transaction_id"`
	Date               Date    `json:"date"`
	CustomerID         string  `json:"customer_id"`
	CustomerName       string  `json:"customer_name"`
	PhoneNumber        string  `json:"phone_number"`
	Gender             string  `json:"gender"`
	Age                int     `json:"age"`
	CustomerRegion     string  `json:"customer_region"`
	ProductID          string  `json:"product_id"`
	ProductCategory    string  `json:"product_category"`
	Tags               string  `json:"tags"`
	Quantity           int     `json:"quantity"`
	PricePerUnit       float64 `json:"price_per_unit"`
	DiscountPercentage float64 `json:"discount_percentage"`
	TotalAmount        float64 `json:"total_amount"`
	FinalAmount        float64 `json:"final_amount"`
	PaymentMethod      string  `json:"payment_method"`
	EmployeeName       string  `json:"employee_name"`
}

// TagSet returns the record's tags as trimmed, non-empty tokens in stored order.
func (s Sale) TagSet() []string {
	return SplitTags(s.Tags)
}

// SplitTags interprets a comma-delimited tag string as a list of trimmed tokens.
// Empty tokens are discarded and duplicates are kept only once.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// NormalizeTags rewrites a raw tag string into the canonical stored form "a,b,c".
func NormalizeTags(raw string) string {
	return strings.Join(SplitTags(raw), ",")
}

// FoldCase is the case-insensitive key used for search and name ordering in
// every store. ASCII input takes the strings.ToLower fast path, which folds the
// same way.
func FoldCase(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return cases.Fold().String(s)
		}
	}
	return strings.ToLower(s)
}

type SortKey string

const (
	SortByDate         SortKey = "date"
	SortByQuantity     SortKey = "quantity"
	SortByCustomerName SortKey = "customer_name"
)

// ParseSortKey maps a raw sortBy value to a known key, falling back to date.
func ParseSortKey(raw string) SortKey {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "quantity":
		return SortByQuantity
	case "customer_name", "customername", "name":
		return SortByCustomerName
	default:
		return SortByDate
	}
}

// SaleFilter is the normalized set of constraints for one request. A nil or
// empty slice and a nil bound both mean "no constraint on this dimension".
type SaleFilter struct {
	Search         string   `json:"search,omitempty"`
	Regions        []string `json:"regions,omitempty"`
	Genders        []string `json:"genders,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	PaymentMethods []string `json:"payment_methods,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MinAge         *int     `json:"min_age,omitempty"`
	MaxAge         *int     `json:"max_age,omitempty"`
	StartDate      *Date    `json:"start_date,omitempty"`
	EndDate        *Date    `json:"end_date,omitempty"`
}

func (f SaleFilter) IsZero() bool {
	return f.Search == "" &&
		len(f.Regions) == 0 && len(f.Genders) == 0 && len(f.Categories) == 0 &&
		len(f.PaymentMethods) == 0 && len(f.Tags) == 0 &&
		f.MinAge == nil && f.MaxAge == nil && f.StartDate == nil && f.EndDate == nil
}

// SalesAggregate is what a store returns for a filter; amounts stay exact until
// they are rendered into SalesStats.
type SalesAggregate struct {
	Units           int64
	Amount          decimal.Decimal
	Discount        decimal.Decimal
	Count           int64
	DiscountedCount int64
}

func (a SalesAggregate) Stats() SalesStats {
	return SalesStats{
		TotalUnits:    a.Units,
		TotalAmount:   a.Amount.Round(2).InexactFloat64(),
		TotalDiscount: a.Discount.Round(2).InexactFloat64(),
		Count:         a.Count,
		DiscountCount: a.DiscountedCount,
	}
}

type SalesStats struct {
	TotalUnits    int64   `json:"totalUnits"`
	TotalAmount   float64 `json:"totalAmount"`
	TotalDiscount float64 `json:"totalDiscount"`
	Count         int64   `json:"count"`
	DiscountCount int64   `json:"discountCount"`
}

type SalesResponse struct {
	Data       []Sale     `json:"data"`
	Stats      SalesStats `json:"stats"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

type FilterOptions struct {
	Regions        []string `json:"regions"`
	Genders        []string `json:"genders"`
	Categories     []string `json:"categories"`
	PaymentMethods []string `json:"paymentMethods"`
	Tags           []string `json:"tags"`
}
