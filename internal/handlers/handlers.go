package handlers

import (
	"context"

	"pattern-sync/internal/indexer"
	"pattern-sync/internal/store"
	"pattern-sync/internal/syncer"
)

// Indexer is the part of *indexer.Indexer the handlers use.
type Indexer interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	ScanAll(ctx context.Context) ([]indexer.ScanResult, error)
}

// Engine is the part of *syncer.Engine the handlers use.
type Engine interface {
	State() syncer.State
	Pending() int
}

type Handlers struct {
	indexer Indexer
	engine  Engine
	stores  []*store.Store
	// scanCtx bounds rescans triggered over HTTP; canceled at shutdown.
	scanCtx context.Context
}

func New(ctx context.Context, idx Indexer, engine Engine, stores ...*store.Store) *Handlers {
	return &Handlers{
		indexer: idx,
		engine:  engine,
		stores:  stores,
		scanCtx: ctx,
	}
}

func (h *Handlers) store(name string) *store.Store {
	for _, s := range h.stores {
		if s.Name() == name {
			return s
		}
	}
	return nil
}
