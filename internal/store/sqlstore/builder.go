// Package sqlstore holds the SQL shared by the postgres and sqlite stores: the
// WHERE/ORDER compilation of a SaleFilter and the row-level reads and writes.
package sqlstore

import (
	"strconv"
	"strings"

	"salesms/backend/internal/domain"
)

// Dialect captures the few places where postgres and sqlite differ.
type Dialect struct {
	Name        string
	Placeholder func(n int) string
	DateArg     func(d domain.Date) any
	// Fold names the SQL function applied to text before case-insensitive
	// comparison; NameOrder is the matching ORDER BY expression.
	Fold      string
	NameOrder string
	// Instr names the case-sensitive substring position function.
	Instr string
	// Dated is the condition an undated row fails.
	Dated string
}

var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Fold:        "LOWER",
	NameOrder:   `LOWER(customer_name) COLLATE "C"`,
	Instr:       "strpos",
	Dated:       "sale_date IS NOT NULL",
	DateArg: func(d domain.Date) any {
		if d.IsZero() {
			return nil
		}
		return d.Time
	},
}

// SQLite relies on the casefold function registered by the sqlite store; its
// built-in LOWER only folds ASCII.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Fold:        "casefold",
	NameOrder:   "casefold(customer_name)",
	Instr:       "instr",
	Dated:       "sale_date <> ''",
	DateArg:     func(d domain.Date) any { return d.String() },
}

const saleColumns = `transaction_id, sale_date, customer_id, customer_name, phone_number, gender, age,
	customer_region, product_id, product_category, tags, quantity, price_per_unit,
	discount_percentage, total_amount, final_amount, payment_method, employee_name`

const saleColumnCount = 18

type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) arg(value any) string {
	b.args = append(b.args, value)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) in(column string, values []string) string {
	placeholders := make([]string, 0, len(values))
	for _, v := range values {
		placeholders = append(placeholders, b.arg(v))
	}
	return column + " IN (" + strings.Join(placeholders, ", ") + ")"
}

// where compiles filter into a WHERE clause (empty when unconstrained). Values
// inside one field are OR-combined; fields are AND-combined.
func (b *builder) where(filter domain.SaleFilter) string {
	conds := make([]string, 0, 8)

	if filter.Search != "" {
		term := "%" + EscapeLike(domain.FoldCase(filter.Search)) + "%"
		fold := b.dialect.Fold
		byName := b.arg(term)
		byPhone := b.arg(term)
		conds = append(conds, "("+fold+"(customer_name) LIKE "+byName+` ESCAPE '\' OR `+fold+"(phone_number) LIKE "+byPhone+` ESCAPE '\')`)
	}
	if len(filter.Regions) > 0 {
		conds = append(conds, b.in("customer_region", filter.Regions))
	}
	if len(filter.Genders) > 0 {
		conds = append(conds, b.in("gender", filter.Genders))
	}
	if len(filter.Categories) > 0 {
		conds = append(conds, b.in("product_category", filter.Categories))
	}
	if len(filter.PaymentMethods) > 0 {
		conds = append(conds, b.in("payment_method", filter.PaymentMethods))
	}
	if filter.MinAge != nil {
		conds = append(conds, "age >= "+b.arg(*filter.MinAge))
	}
	if filter.MaxAge != nil {
		conds = append(conds, "age <= "+b.arg(*filter.MaxAge))
	}
	if filter.StartDate != nil || filter.EndDate != nil {
		conds = append(conds, b.dialect.Dated)
	}
	if filter.StartDate != nil {
		conds = append(conds, "sale_date >= "+b.arg(b.dialect.DateArg(*filter.StartDate)))
	}
	if filter.EndDate != nil {
		conds = append(conds, "sale_date <= "+b.arg(b.dialect.DateArg(*filter.EndDate)))
	}
	if len(filter.Tags) > 0 {
		// tags are stored normalized as "a,b,c", so wrapping both sides in
		// commas turns exact token membership into a substring test.
		matches := make([]string, 0, len(filter.Tags))
		for _, tag := range filter.Tags {
			matches = append(matches, b.dialect.Instr+"(',' || tags || ',', "+b.arg(","+tag+",")+") > 0")
		}
		conds = append(conds, "("+strings.Join(matches, " OR ")+")")
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// BuildWhere is the standalone form of the filter compilation.
func BuildWhere(dialect Dialect, filter domain.SaleFilter) (string, []any) {
	b := &builder{dialect: dialect}
	clause := b.where(filter)
	return clause, b.args
}

// OrderBy always ends with transaction_id so equal keys page deterministically.
func OrderBy(dialect Dialect, sort domain.SortKey) string {
	switch domain.ParseSortKey(string(sort)) {
	case domain.SortByQuantity:
		return " ORDER BY quantity DESC, transaction_id ASC"
	case domain.SortByCustomerName:
		return " ORDER BY " + dialect.NameOrder + " ASC, transaction_id ASC"
	default:
		return " ORDER BY sale_date DESC NULLS LAST, transaction_id ASC"
	}
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}
