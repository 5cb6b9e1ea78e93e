// Package worker reacts to budget-saved events by mirroring entity rollups
// to the configured sheet destination, and sweeps expired share tokens.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"patrimonio/internal/amqp"
	"patrimonio/internal/core"
	"patrimonio/internal/sheets"
)

// Store is the read side the export worker needs.
type Store interface {
	GetEntity(ctx context.Context, entityID string) (core.Entity, error)
	ListEntities(ctx context.Context) ([]core.Entity, error)
	GetEntityBudgetItems(ctx context.Context, entityID string, window core.MonthRange) ([]core.BudgetItem, error)
	DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int64, error)
}

// ExportWorker rebuilds an entity's rollup from the database and pushes it
// through the exporter. Messages carry identifiers only, so a delayed or
// replayed delivery still exports current data.
type ExportWorker struct {
	store       Store
	exporter    sheets.RollupExporter
	concurrency int
}

func NewExportWorker(store Store, exporter sheets.RollupExporter, concurrency int) *ExportWorker {
	if concurrency < 1 {
		concurrency = 4
	}
	return &ExportWorker{
		store:       store,
		exporter:    exporter,
		concurrency: concurrency,
	}
}

// HandleBudgetSaved processes one budget-saved event. Errors propagate so
// the consumer can nack and requeue.
func (w *ExportWorker) HandleBudgetSaved(ctx context.Context, msg *amqp.BudgetSavedMessage) error {
	slog.InfoContext(ctx, "Processing budget saved message",
		"building_id", msg.BuildingID,
		"entity_id", msg.EntityID,
		"rows_affected", msg.RowsAffected)

	return w.exportEntity(ctx, msg.EntityID)
}

// ExportAll refreshes every entity's rollup, fanned out across a bounded
// number of goroutines. Used at startup to recover from missed messages.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	entities, err := w.store.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	if len(entities) == 0 {
		slog.InfoContext(ctx, "No entities to export")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, entity := range entities {
		g.Go(func() error {
			return w.exportEntity(gctx, entity.EntityID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("export all entities: %w", err)
	}

	slog.InfoContext(ctx, "Exported all entity rollups", "count", len(entities))
	return nil
}

func (w *ExportWorker) exportEntity(ctx context.Context, entityID string) error {
	entity, err := w.store.GetEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("get entity %s: %w", entityID, err)
	}

	window := core.DefaultWindow(time.Now())
	items, err := w.store.GetEntityBudgetItems(ctx, entityID, window)
	if err != nil {
		return fmt.Errorf("read entity items: %w", err)
	}

	grid := core.BuildGrid(items, window)
	if err := w.exporter.ExportEntityRollup(ctx, entity, grid); err != nil {
		return fmt.Errorf("export rollup for %s: %w", entityID, err)
	}

	slog.InfoContext(ctx, "Exported entity rollup",
		"entity_id", entityID,
		"items", len(items),
		"grand_total", grid.GrandTotal.String())
	return nil
}

// PurgeExpiredTokens removes share tokens whose expiry has passed. Resolution
// never depends on this sweep; it only keeps the table small.
func (w *ExportWorker) PurgeExpiredTokens(ctx context.Context) error {
	deleted, err := w.store.DeleteExpiredShareTokens(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("purge expired tokens: %w", err)
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "Purged expired share tokens", "deleted", deleted)
	}
	return nil
}
