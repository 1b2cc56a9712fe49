package ingest

import (
	"context"
	"sync"
)

// Gate blocks queries until the initial load has settled. It opens once, either
// ready or failed; a later successful import can clear a failure.
type Gate struct {
	mu   sync.RWMutex
	done chan struct{}
	err  error
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// NewOpenGate returns a gate that is already ready.
func NewOpenGate() *Gate {
	g := NewGate()
	g.MarkReady()
	return g
}

func (g *Gate) MarkReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = nil
	g.openLocked()
}

func (g *Gate) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
	g.openLocked()
}

func (g *Gate) openLocked() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
}

// Ready reports whether the gate is open without a failure.
func (g *Gate) Ready() bool {
	select {
	case <-g.done:
		return g.Err() == nil
	default:
		return false
	}
}

func (g *Gate) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

// Wait blocks until the gate opens and returns its failure, if any, or the
// context's error if it ends first.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
