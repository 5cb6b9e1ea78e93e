// Package ledger owns the bulk-save semantics of the budget ledger: a batch
// of line items for one building is validated as a whole and written as a
// whole, or rejected as a whole.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"patrimonio/internal/core"
)

// Store is the persistence port the ledger needs. Implemented by
// storage.SQLiteRepository.
type Store interface {
	BuildingExists(ctx context.Context, buildingID string) error
	GetBuilding(ctx context.Context, buildingID string) (core.Building, error)
	EntityExists(ctx context.Context, entityID string) error
	UpsertBudgetBatch(ctx context.Context, buildingID string, lines []core.BudgetLine) (int64, error)
	GetBudgetItems(ctx context.Context, buildingID string, window core.MonthRange) ([]core.BudgetItem, error)
	GetEntityBudgetItems(ctx context.Context, entityID string, window core.MonthRange) ([]core.BudgetItem, error)
}

// Publisher emits budget-saved events for the export pipeline.
type Publisher interface {
	PublishBudgetSaved(ctx context.Context, buildingID, entityID string, rowsAffected int64) error
}

// BatchError identifies the first invalid tuple of a rejected batch.
// Index is the zero-based position in the submitted order.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

var ErrEmptyBatch = errors.New("empty batch")

type Service struct {
	store     Store
	publisher Publisher
}

// NewService wires the ledger. publisher may be nil when AMQP is not
// configured; saves then skip the event.
func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// SaveBatch validates and upserts an ordered batch of budget lines for one
// building. Validation runs over the whole batch before anything is
// written: the first invalid tuple rejects the entire batch with a
// BatchError and no row changes. The write itself is a single storage
// transaction of native upserts, so retrying after a transient storage
// error is safe.
func (s *Service) SaveBatch(ctx context.Context, buildingID string, lines []core.BudgetLine) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrEmptyBatch
	}
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			return 0, &BatchError{Index: i, Err: err}
		}
	}
	if err := s.store.BuildingExists(ctx, buildingID); err != nil {
		return 0, err
	}

	affected, err := s.store.UpsertBudgetBatch(ctx, buildingID, lines)
	if err != nil {
		return 0, fmt.Errorf("save batch: %w", err)
	}

	s.publishSaved(ctx, buildingID, affected)
	return affected, nil
}

func (s *Service) publishSaved(ctx context.Context, buildingID string, affected int64) {
	if s.publisher == nil {
		return
	}
	building, err := s.store.GetBuilding(ctx, buildingID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve building for saved event",
			"building_id", buildingID, "error", err)
		return
	}
	// The batch is committed; a lost event only delays the export sweep.
	if err := s.publisher.PublishBudgetSaved(ctx, buildingID, building.EntityID, affected); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget saved event",
			"building_id", buildingID, "entity_id", building.EntityID, "error", err)
	}
}

// ReadItems returns the building's stored items inside the window.
func (s *Service) ReadItems(ctx context.Context, buildingID string, window core.MonthRange) ([]core.BudgetItem, error) {
	if err := s.store.BuildingExists(ctx, buildingID); err != nil {
		return nil, err
	}
	items, err := s.store.GetBudgetItems(ctx, buildingID, window)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return items, nil
}

// ReadGrid materializes the building's category-by-month grid with totals.
func (s *Service) ReadGrid(ctx context.Context, buildingID string, window core.MonthRange) (core.Grid, error) {
	items, err := s.ReadItems(ctx, buildingID, window)
	if err != nil {
		return core.Grid{}, err
	}
	return core.BuildGrid(items, window), nil
}

// ReadEntityGrid materializes the entity rollup: the same grid shape summed
// across every building the entity owns.
func (s *Service) ReadEntityGrid(ctx context.Context, entityID string, window core.MonthRange) (core.Grid, error) {
	if err := s.store.EntityExists(ctx, entityID); err != nil {
		return core.Grid{}, err
	}
	items, err := s.store.GetEntityBudgetItems(ctx, entityID, window)
	if err != nil {
		return core.Grid{}, fmt.Errorf("read entity items: %w", err)
	}
	return core.BuildGrid(items, window), nil
}
