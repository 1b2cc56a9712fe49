package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/store"
)

const insertChunkSize = 500

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Sales runs the sales queries against a database handle or a transaction.
type Sales struct {
	q       Querier
	dialect Dialect
}

func NewSales(q Querier, dialect Dialect) *Sales {
	return &Sales{q: q, dialect: dialect}
}

func (s *Sales) FindSales(ctx context.Context, filter domain.SaleFilter, sort domain.SortKey, offset int, limit int) ([]domain.Sale, error) {
	if offset < 0 || limit < 1 {
		return []domain.Sale{}, nil
	}
	b := &builder{dialect: s.dialect}
	stmt := "SELECT " + saleColumns + " FROM sales" + b.where(filter) + OrderBy(s.dialect, sort) +
		" LIMIT " + b.arg(limit) + " OFFSET " + b.arg(offset)

	rows, err := s.q.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, store.Unavailable("find sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, store.Unavailable("scan sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("find sales", err)
	}
	return sales, nil
}

func (s *Sales) CountSales(ctx context.Context, filter domain.SaleFilter) (int64, error) {
	b := &builder{dialect: s.dialect}
	var count int64
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales"+b.where(filter), b.args...).Scan(&count)
	if err != nil {
		return 0, store.Unavailable("count sales", err)
	}
	return count, nil
}

func (s *Sales) AggregateSales(ctx context.Context, filter domain.SaleFilter) (domain.SalesAggregate, error) {
	b := &builder{dialect: s.dialect}
	stmt := `
		SELECT
			COUNT(*),
			COALESCE(SUM(quantity), 0),
			COALESCE(SUM(final_amount), 0),
			COALESCE(SUM(total_amount - final_amount), 0),
			COALESCE(SUM(CASE WHEN total_amount > final_amount THEN 1 ELSE 0 END), 0)
		FROM sales` + b.where(filter)

	var (
		agg      domain.SalesAggregate
		amount   decimal.Decimal
		discount decimal.Decimal
	)
	err := s.q.QueryRowContext(ctx, stmt, b.args...).Scan(
		&agg.Count,
		&agg.Units,
		&amount,
		&discount,
		&agg.DiscountedCount,
	)
	if err != nil {
		return domain.SalesAggregate{}, store.Unavailable("aggregate sales", err)
	}
	agg.Amount = amount
	agg.Discount = discount
	return agg, nil
}

func (s *Sales) DistinctValues(ctx context.Context, field store.Field) ([]string, error) {
	if !field.Valid() {
		return nil, store.ErrInvalidField
	}
	column := string(field)
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT `+column+`
		FROM sales
		WHERE `+column+` <> ''
		ORDER BY `+column)
	if err != nil {
		return nil, store.Unavailable("distinct "+column, err)
	}
	defer rows.Close()

	values := make([]string, 0, 16)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, store.Unavailable("distinct "+column, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("distinct "+column, err)
	}
	return values, nil
}

func (s *Sales) TagLists(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT tags FROM sales WHERE tags <> ''`)
	if err != nil {
		return nil, store.Unavailable("distinct tags", err)
	}
	defer rows.Close()

	lists := make([]string, 0, 64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.Unavailable("distinct tags", err)
		}
		lists = append(lists, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("distinct tags", err)
	}
	return lists, nil
}

// InsertSales writes in multi-row chunks; existing transaction ids are skipped
// by the conflict clause and not counted.
func (s *Sales) InsertSales(ctx context.Context, sales []domain.Sale) (int, error) {
	inserted := 0
	for start := 0; start < len(sales); start += insertChunkSize {
		end := min(start+insertChunkSize, len(sales))
		n, err := s.insertChunk(ctx, sales[start:end])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (s *Sales) insertChunk(ctx context.Context, chunk []domain.Sale) (int, error) {
	b := &builder{dialect: s.dialect, args: make([]any, 0, len(chunk)*saleColumnCount)}
	tuples := make([]string, 0, len(chunk))
	for _, sale := range chunk {
		if sale.TransactionID == "" {
			continue
		}
		values := []any{
			sale.TransactionID,
			s.dialect.DateArg(sale.Date),
			sale.CustomerID,
			sale.CustomerName,
			sale.PhoneNumber,
			sale.Gender,
			sale.Age,
			sale.CustomerRegion,
			sale.ProductID,
			sale.ProductCategory,
			domain.NormalizeTags(sale.Tags),
			sale.Quantity,
			sale.PricePerUnit,
			sale.DiscountPercentage,
			sale.TotalAmount,
			sale.FinalAmount,
			sale.PaymentMethod,
			sale.EmployeeName,
		}
		placeholders := make([]string, 0, len(values))
		for _, v := range values {
			placeholders = append(placeholders, b.arg(v))
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
	}
	if len(tuples) == 0 {
		return 0, nil
	}

	stmt := "INSERT INTO sales (" + saleColumns + ") VALUES " + strings.Join(tuples, ", ") +
		" ON CONFLICT (transaction_id) DO NOTHING"
	res, err := s.q.ExecContext(ctx, stmt, b.args...)
	if err != nil {
		return 0, store.Unavailable("insert sales", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, store.Unavailable("insert sales", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.TransactionID,
		&sale.Date,
		&sale.CustomerID,
		&sale.CustomerName,
		&sale.PhoneNumber,
		&sale.Gender,
		&sale.Age,
		&sale.CustomerRegion,
		&sale.ProductID,
		&sale.ProductCategory,
		&sale.Tags,
		&sale.Quantity,
		&sale.PricePerUnit,
		&sale.DiscountPercentage,
		&sale.TotalAmount,
		&sale.FinalAmount,
		&sale.PaymentMethod,
		&sale.EmployeeName,
	)
	return sale, err
}
