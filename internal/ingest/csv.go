package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"salesms/backend/internal/domain"
)

var ErrMissingColumn = errors.New("csv header has no transaction id column")

// RowError marks a single malformed row. The reader stays usable after one.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// headerAliases maps normalized export headers onto record fields.
var headerAliases = map[string]string{
	"date":           "date",
	"sale_date":      "date",
	"phone":          "phone_number",
	"region":         "customer_region",
	"category":       "product_category",
	"price":          "price_per_unit",
	"discount":       "discount_percentage",
	"employee":       "employee_name",
	"payment":        "payment_method",
	"transaction_no": "transaction_id",
}

// Reader decodes a sales export row by row.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
}

func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingColumn
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := columnKey(name)
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	if _, ok := columns["transaction_id"]; !ok {
		return nil, ErrMissingColumn
	}

	return &Reader{csv: cr, columns: columns}, nil
}

// Read returns the next record, io.EOF at the end of input, or a *RowError for
// a row that should be skipped.
func (r *Reader) Read() (domain.Sale, error) {
	record, err := r.csv.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return domain.Sale{}, &RowError{Line: parseErr.Line, Err: parseErr.Err}
		}
		return domain.Sale{}, err
	}
	line, _ := r.csv.FieldPos(0)

	get := func(column string) string {
		i, ok := r.columns[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	sale := domain.Sale{
		TransactionID:   get("transaction_id"),
		CustomerID:      get("customer_id"),
		CustomerName:    get("customer_name"),
		PhoneNumber:     get("phone_number"),
		Gender:          get("gender"),
		CustomerRegion:  get("customer_region"),
		ProductID:       get("product_id"),
		ProductCategory: get("product_category"),
		Tags:            domain.NormalizeTags(get("tags")),
		PaymentMethod:   get("payment_method"),
		EmployeeName:    get("employee_name"),
	}
	if sale.TransactionID == "" {
		return domain.Sale{}, &RowError{Line: line, Err: errors.New("missing transaction id")}
	}

	var fieldErr error
	intField := func(column string) int {
		raw := get(column)
		if raw == "" || fieldErr != nil {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			// Some exports write whole numbers as "3.0".
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || f != float64(int(f)) {
				fieldErr = fmt.Errorf("%s: invalid integer %q", column, raw)
				return 0
			}
			n = int(f)
		}
		return n
	}
	floatField := func(column string) float64 {
		raw := strings.TrimSuffix(get(column), "%")
		if raw == "" || fieldErr != nil {
			return 0
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErr = fmt.Errorf("%s: invalid number %q", column, raw)
			return 0
		}
		return f
	}

	sale.Age = intField("age")
	sale.Quantity = intField("quantity")
	sale.PricePerUnit = floatField("price_per_unit")
	sale.DiscountPercentage = floatField("discount_percentage")
	sale.TotalAmount = floatField("total_amount")
	sale.FinalAmount = floatField("final_amount")
	if fieldErr != nil {
		return domain.Sale{}, &RowError{Line: line, Err: fieldErr}
	}

	if raw := get("date"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return domain.Sale{}, &RowError{Line: line, Err: err}
		}
		sale.Date = d
	}

	return sale, nil
}

// columnKey turns "Transaction ID" or "transaction-id" into "transaction_id".
func columnKey(header string) string {
	key := strings.TrimPrefix(header, "\ufeff")
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if alias, ok := headerAliases[key]; ok {
		return alias
	}
	return key
}
