// Package ingest bulk loads the CSV export into a sales store and tracks
// whether the store is ready to serve queries.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"salesms/backend/internal/domain"
	"salesms/backend/internal/metrics"
)

const DefaultBatchSize = 1000

var ErrImportRunning = errors.New("import already running")

// Target is the part of a store the loader writes through.
type Target interface {
	CountSales(ctx context.Context, filter domain.SaleFilter) (int64, error)
	InsertSales(ctx context.Context, sales []domain.Sale) (int, error)
}

type Loader struct {
	target     Target
	gate       *Gate
	batchSize  int
	logger     zerolog.Logger
	onComplete func(ctx context.Context, status domain.ImportStatus)

	running atomic.Bool
	mu      sync.RWMutex
	status  domain.ImportStatus
}

func NewLoader(target Target, gate *Gate, batchSize int, logger zerolog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if gate == nil {
		gate = NewGate()
	}
	return &Loader{
		target:    target,
		gate:      gate,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "ingest").Logger(),
		status:    domain.ImportStatus{State: domain.ImportIdle},
	}
}

// OnComplete registers fn to run after every import that inserted rows.
func (l *Loader) OnComplete(fn func(ctx context.Context, status domain.ImportStatus)) {
	l.onComplete = fn
}

func (l *Loader) Gate() *Gate {
	return l.gate
}

func (l *Loader) Status() domain.ImportStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Bootstrap opens the gate over an already populated store, or imports path
// into an empty one first. Any failure is recorded on the gate.
func (l *Loader) Bootstrap(ctx context.Context, path string) error {
	count, err := l.target.CountSales(ctx, domain.SaleFilter{})
	if err != nil {
		l.gate.Fail(err)
		return fmt.Errorf("count existing sales: %w", err)
	}
	if count > 0 {
		l.logger.Info().Int64("records", count).Msg("store already populated, skipping import")
		l.gate.MarkReady()
		return nil
	}
	if path == "" {
		l.logger.Warn().Msg("store is empty and no csv configured")
		l.gate.MarkReady()
		return nil
	}

	l.logger.Info().Str("file", path).Msg("store is empty, importing csv")
	if _, err := l.ImportFile(ctx, path); err != nil {
		l.gate.Fail(err)
		return err
	}
	l.gate.MarkReady()
	return nil
}

// Start runs ImportFile in the background. It fails fast with
// ErrImportRunning instead of queueing behind a running import.
func (l *Loader) Start(ctx context.Context, path string) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrImportRunning
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer l.running.Store(false)
		if _, err := l.importFile(ctx, path); err != nil {
			l.logger.Error().Err(err).Str("file", path).Msg("background import failed")
			return
		}
		l.gate.MarkReady()
	}()
	return nil
}

func (l *Loader) ImportFile(ctx context.Context, path string) (domain.ImportStatus, error) {
	if !l.running.CompareAndSwap(false, true) {
		return l.Status(), ErrImportRunning
	}
	defer l.running.Store(false)
	return l.importFile(ctx, path)
}

func (l *Loader) Import(ctx context.Context, src io.Reader, name string) (domain.ImportStatus, error) {
	if !l.running.CompareAndSwap(false, true) {
		return l.Status(), ErrImportRunning
	}
	defer l.running.Store(false)
	return l.run(ctx, src, name)
}

func (l *Loader) importFile(ctx context.Context, path string) (domain.ImportStatus, error) {
	f, err := os.Open(path)
	if err != nil {
		status := l.begin(path)
		return l.finish(ctx, status, fmt.Errorf("open csv: %w", err))
	}
	defer f.Close()
	return l.run(ctx, f, path)
}

// run streams rows from src into the target: one goroutine parses and batches,
// the other inserts, so parsing overlaps with store round trips.
func (l *Loader) run(ctx context.Context, src io.Reader, name string) (domain.ImportStatus, error) {
	status := l.begin(name)

	reader, err := NewReader(src)
	if err != nil {
		return l.finish(ctx, status, err)
	}

	var rows, skipped, inserted int64
	batches := make(chan []domain.Sale, 2)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		batch := make([]domain.Sale, 0, l.batchSize)
		for {
			sale, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				skipped++
				l.logger.Debug().Err(rowErr).Msg("skipping csv row")
				continue
			}
			if err != nil {
				return fmt.Errorf("read csv: %w", err)
			}
			rows++
			batch = append(batch, sale)
			if len(batch) < l.batchSize {
				continue
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = make([]domain.Sale, 0, l.batchSize)
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for batch := range batches {
			n, err := l.target.InsertSales(gctx, batch)
			if err != nil {
				return fmt.Errorf("insert batch: %w", err)
			}
			inserted += int64(n)
			metrics.ImportRows.WithLabelValues("inserted").Add(float64(n))
			metrics.ImportRows.WithLabelValues("duplicate").Add(float64(len(batch) - n))
		}
		return nil
	})

	err = g.Wait()
	metrics.ImportRows.WithLabelValues("skipped").Add(float64(skipped))
	status.Rows = rows
	status.Skipped = skipped
	status.Inserted = inserted
	return l.finish(ctx, status, err)
}

func (l *Loader) begin(name string) domain.ImportStatus {
	now := time.Now().UTC()
	status := domain.ImportStatus{
		State:     domain.ImportRunning,
		Source:    name,
		StartedAt: &now,
	}
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
	return status
}

func (l *Loader) finish(ctx context.Context, status domain.ImportStatus, err error) (domain.ImportStatus, error) {
	now := time.Now().UTC()
	status.FinishedAt = &now
	if err != nil {
		status.State = domain.ImportFailed
		status.Error = err.Error()
	} else {
		status.State = domain.ImportSucceeded
	}

	l.mu.Lock()
	l.status = status
	l.mu.Unlock()

	event := l.logger.Info()
	if err != nil {
		event = l.logger.Error().Err(err)
	}
	event.
		Str("source", status.Source).
		Int64("rows", status.Rows).
		Int64("inserted", status.Inserted).
		Int64("skipped", status.Skipped).
		Dur("took", now.Sub(*status.StartedAt)).
		Msg("import finished")

	// Partially applied imports still changed the data.
	if status.Inserted > 0 && l.onComplete != nil {
		l.onComplete(context.WithoutCancel(ctx), status)
	}
	return status, err
}
