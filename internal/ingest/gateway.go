package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes validated reports from a source. The returned error is
// relayed back to the reporting surface where the transport allows it.
type Handler func(ctx context.Context, report Report) error

// Source is the interface each ingestion transport implements.
type Source interface {
	Start(ctx context.Context, handler Handler) error
	Stop() error
}

// Gateway routes incoming reports from registered sources to one handler.
type Gateway struct {
	sources map[string]Source
	mu      sync.RWMutex
}

// NewGateway creates a new ingestion gateway.
func NewGateway() *Gateway {
	return &Gateway{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the gateway.
func (g *Gateway) Register(name string, src Source) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[name] = src
	slog.Info("ingest source registered", "source", name)
}

// HasSource returns true if the named source is registered.
func (g *Gateway) HasSource(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sources[name]
	return ok
}

// StartAll starts all registered sources with the given handler.
func (g *Gateway) StartAll(ctx context.Context, handler Handler) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, src := range g.sources {
		slog.Info("starting ingest source", "source", name)
		if err := src.Start(ctx, handler); err != nil {
			return fmt.Errorf("starting source %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops all registered sources.
func (g *Gateway) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for name, src := range g.sources {
		if err := src.Stop(); err != nil {
			slog.Warn("stopping ingest source", "source", name, "error", err)
		}
	}
}

// MockSource is a test double for Source.
type MockSource struct {
	Started bool
	Stopped bool
	Handler Handler
}

func (m *MockSource) Start(_ context.Context, handler Handler) error {
	m.Started = true
	m.Handler = handler
	return nil
}

func (m *MockSource) Stop() error {
	m.Stopped = true
	return nil
}
