package sheets

import (
	"context"

	"patrimonio/internal/core"
)

// Ports for outbound adapters.
type (
	// RollupExporter mirrors an entity's budget rollup to an external sheet.
	// Exports are full snapshots; the destination is overwritten, never
	// appended to.
	RollupExporter interface {
		ExportEntityRollup(ctx context.Context, entity core.Entity, grid core.Grid) error
	}
)
