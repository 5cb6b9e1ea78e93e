// Package memory holds an in-process rollup exporter for tests and for
// running without Google credentials.
package memory

import (
	"context"
	"sync"

	"patrimonio/internal/core"
)

type Export struct {
	Entity core.Entity
	Grid   core.Grid
}

type Exporter struct {
	mu      sync.Mutex
	exports []Export
}

func New() *Exporter {
	return &Exporter{}
}

// ExportEntityRollup records the snapshot. The latest export per entity is
// what a real destination would show.
func (e *Exporter) ExportEntityRollup(_ context.Context, entity core.Entity, grid core.Grid) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports = append(e.exports, Export{Entity: entity, Grid: grid})
	return nil
}

// Exports returns every recorded export in order.
func (e *Exporter) Exports() []Export {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Export(nil), e.exports...)
}

// Latest returns the most recent export for the entity, if any.
func (e *Exporter) Latest(entityID string) (Export, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.exports) - 1; i >= 0; i-- {
		if e.exports[i].Entity.EntityID == entityID {
			return e.exports[i], true
		}
	}
	return Export{}, false
}
