package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"salesms/backend/internal/store"
	"salesms/backend/internal/store/sqlstore"
)

type Store struct {
	*sqlstore.Sales
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		Sales: sqlstore.NewSales(db, sqlstore.Postgres),
		db:    db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot runs fn inside a read-only REPEATABLE READ transaction, so every
// read sees the same committed state even while an import is inserting.
func (s *Store) Snapshot(ctx context.Context, fn func(r store.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return store.Unavailable("begin snapshot", err)
	}

	if err := fn(sqlstore.NewSales(tx, sqlstore.Postgres)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return store.Unavailable("end snapshot", err)
	}
	return nil
}
