package store

import (
	"context"
	"errors"
	"fmt"

	"salesms/backend/internal/domain"
)

var (
	ErrUnavailable  = errors.New("sales store unavailable")
	ErrInvalidField = errors.New("invalid catalog field")
)

// Field names a categorical column that DistinctValues can enumerate.
type Field string

const (
	FieldRegion        Field = "customer_region"
	FieldGender        Field = "gender"
	FieldCategory      Field = "product_category"
	FieldPaymentMethod Field = "payment_method"
)

func (f Field) Valid() bool {
	switch f {
	case FieldRegion, FieldGender, FieldCategory, FieldPaymentMethod:
		return true
	}
	return false
}

// Reader is the read side every query runs against.
type Reader interface {
	FindSales(ctx context.Context, filter domain.SaleFilter, sort domain.SortKey, offset int, limit int) ([]domain.Sale, error)
	CountSales(ctx context.Context, filter domain.SaleFilter) (int64, error)
	AggregateSales(ctx context.Context, filter domain.SaleFilter) (domain.SalesAggregate, error)
}

type Repository interface {
	Reader
	// Snapshot runs fn against one consistent view of the store, so the page
	// and the aggregate of a single request agree with each other.
	Snapshot(ctx context.Context, fn func(r Reader) error) error
	DistinctValues(ctx context.Context, field Field) ([]string, error)
	// TagLists returns the distinct raw tag strings; splitting is up to the caller.
	TagLists(ctx context.Context) ([]string, error)
	// InsertSales stores a batch and reports how many rows were new. Records
	// whose transaction_id already exists are skipped.
	InsertSales(ctx context.Context, sales []domain.Sale) (int, error)
}

// Unavailable tags a backing-store failure as retryable. Context errors are
// returned unchanged so callers can tell cancellation from outage.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}
