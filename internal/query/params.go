package query

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"salesms/backend/internal/domain"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Request is a fully normalized sales query: predicate, order and window.
type Request struct {
	Filter domain.SaleFilter `json:"filter"`
	Sort   domain.SortKey    `json:"sort"`
	Page   int               `json:"page"`
	Limit  int               `json:"limit"`
}

// ParamError reports a supplied value that could not be interpreted for its
// field. The constraint is dropped and the rest of the request still runs.
type ParamError struct {
	Field string
	Value string
	Err   error
}

func (e ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e ParamError) Unwrap() error {
	return e.Err
}

// ParseRequest compiles raw query parameters into a Request. Unparseable
// optional values are reported as ParamErrors and treated as absent.
func ParseRequest(values url.Values) (Request, []ParamError) {
	var issues []ParamError

	filter := domain.SaleFilter{
		Search:         domain.FoldCase(strings.TrimSpace(first(values, "search"))),
		Regions:        multiValue(values, "region"),
		Genders:        multiValue(values, "gender"),
		Categories:     multiValue(values, "category"),
		PaymentMethods: multiValue(values, "paymentMethod"),
		Tags:           multiValue(values, "tags"),
	}

	filter.MinAge = parseIntParam(values, "minAge", &issues)
	filter.MaxAge = parseIntParam(values, "maxAge", &issues)
	filter.StartDate = parseDateParam(values, "startDate", &issues)
	filter.EndDate = parseDateParam(values, "endDate", &issues)

	page := parseWindowParam(values, "page", DefaultPage, &issues)
	limit := parseWindowParam(values, "limit", DefaultLimit, &issues)

	req := Request{
		Filter: filter,
		Sort:   domain.ParseSortKey(first(values, "sortBy")),
		Page:   page,
		Limit:  limit,
	}
	return req.Normalize(), issues
}

// Normalize clamps the window and defaults the sort key. It is idempotent.
func (r Request) Normalize() Request {
	r.Sort = domain.ParseSortKey(string(r.Sort))
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	r.Limit = ClampLimit(r.Limit)
	return r
}

// Offset is the index of the first row of the page. A page so large that the
// offset does not fit in an int saturates to math.MaxInt, which lies past any
// store.
func (r Request) Offset() int {
	page, limit := r.Page, ClampLimit(r.Limit)
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// CacheKey is a stable digest of the canonical request; value order inside a
// multi-valued field does not change the key.
func (r Request) CacheKey() string {
	canonical := r.Normalize()
	canonical.Filter = canonicalFilter(canonical.Filter)
	payload, err := json.Marshal(canonical)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", canonical))
	}
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}

func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func TotalPages(total int64, limit int) int {
	limit = ClampLimit(limit)
	if total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func canonicalFilter(f domain.SaleFilter) domain.SaleFilter {
	for _, values := range []*[]string{&f.Regions, &f.Genders, &f.Categories, &f.PaymentMethods, &f.Tags} {
		if len(*values) == 0 {
			*values = nil
			continue
		}
		sorted := append([]string(nil), (*values)...)
		sort.Strings(sorted)
		*values = sorted
	}
	return f
}

func first(values url.Values, key string) string {
	for _, candidate := range []string{key, key + "[]"} {
		for _, v := range values[candidate] {
			if strings.TrimSpace(v) != "" {
				return v
			}
		}
	}
	return ""
}

// multiValue collapses the single-token, repeated-key, key[] and comma-joined
// shapes of a filter field into one deduplicated set. Empty means absent.
func multiValue(values url.Values, key string) []string {
	raw := append(append([]string(nil), values[key]...), values[key+"[]"]...)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		for _, token := range strings.Split(entry, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseIntParam(values url.Values, key string, issues *[]ParamError) *int {
	raw := strings.TrimSpace(first(values, key))
	if raw == "" {
		return nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		*issues = append(*issues, ParamError{Field: key, Value: raw, Err: err})
		return nil
	}
	return &parsed
}

func parseDateParam(values url.Values, key string, issues *[]ParamError) *domain.Date {
	raw := strings.TrimSpace(first(values, key))
	if raw == "" {
		return nil
	}
	parsed, err := domain.ParseDate(raw)
	if err != nil {
		*issues = append(*issues, ParamError{Field: key, Value: raw, Err: err})
		return nil
	}
	return &parsed
}

func parseWindowParam(values url.Values, key string, fallback int, issues *[]ParamError) int {
	raw := strings.TrimSpace(first(values, key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		*issues = append(*issues, ParamError{Field: key, Value: raw, Err: err})
		return fallback
	}
	return parsed
}
