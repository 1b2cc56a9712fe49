// Package sqlite stores sales in a single SQLite file, the same way the
// dashboard's original dataset was kept. Queries are shared with postgres via
// sqlstore; only the schema and the snapshot transaction live here.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	modernc "modernc.org/sqlite"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/store"
	"salesms/backend/internal/store/sqlstore"
)

// casefold gives SQL the same Unicode case folding the in-memory store uses;
// SQLite's own LOWER stops at ASCII.
func init() {
	modernc.MustRegisterDeterministicScalarFunction("casefold", 1, func(_ *modernc.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return domain.FoldCase(v), nil
		case []byte:
			return domain.FoldCase(string(v)), nil
		default:
			return v, nil
		}
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS sales (
	transaction_id      TEXT PRIMARY KEY,
	sale_date           TEXT NOT NULL DEFAULT '',
	customer_id         TEXT NOT NULL DEFAULT '',
	customer_name       TEXT NOT NULL DEFAULT '',
	phone_number        TEXT NOT NULL DEFAULT '',
	gender              TEXT NOT NULL DEFAULT '',
	age                 INTEGER NOT NULL DEFAULT 0,
	customer_region     TEXT NOT NULL DEFAULT '',
	product_id          TEXT NOT NULL DEFAULT '',
	product_category    TEXT NOT NULL DEFAULT '',
	tags                TEXT NOT NULL DEFAULT '',
	quantity            INTEGER NOT NULL DEFAULT 0,
	price_per_unit      REAL NOT NULL DEFAULT 0,
	discount_percentage REAL NOT NULL DEFAULT 0,
	total_amount        REAL NOT NULL DEFAULT 0,
	final_amount        REAL NOT NULL DEFAULT 0,
	payment_method      TEXT NOT NULL DEFAULT '',
	employee_name       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sales_customer_region ON sales (customer_region);
CREATE INDEX IF NOT EXISTS idx_sales_gender ON sales (gender);
CREATE INDEX IF NOT EXISTS idx_sales_product_category ON sales (product_category);
CREATE INDEX IF NOT EXISTS idx_sales_payment_method ON sales (payment_method);
CREATE INDEX IF NOT EXISTS idx_sales_date_id ON sales (sale_date DESC, transaction_id);
CREATE INDEX IF NOT EXISTS idx_sales_quantity_id ON sales (quantity DESC, transaction_id);
CREATE INDEX IF NOT EXISTS idx_sales_customer_name ON sales (customer_name);
`

type Store struct {
	*sqlstore.Sales
	db *sql.DB
}

// New opens (or creates) the database at path in WAL mode and ensures the
// schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{
		Sales: sqlstore.NewSales(db, sqlstore.SQLite),
		db:    db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot runs fn in one read transaction; under WAL the first read pins the
// snapshot until commit.
func (s *Store) Snapshot(ctx context.Context, fn func(r store.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable("begin snapshot", err)
	}

	if err := fn(sqlstore.NewSales(tx, sqlstore.SQLite)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return store.Unavailable("end snapshot", err)
	}
	return nil
}
