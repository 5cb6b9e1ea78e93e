package memory

import (
	"context"
	"testing"
	"time"

	"patrimonio/internal/core"
	ports "patrimonio/internal/sheets"
)

var _ ports.RollupExporter = (*Exporter)(nil)

func TestExporterRecordsAndReturnsLatest(t *testing.T) {
	e := New()
	ctx := context.Background()
	entity := core.Entity{EntityID: "entity-1", Name: "Fondo Nord"}
	window := core.MonthRange{
		From: core.NewMonth(2026, time.January),
		To:   core.NewMonth(2026, time.January),
	}

	first := core.BuildGrid([]core.BudgetItem{
		{BuildingID: "b1", Month: core.NewMonth(2026, time.January), Category: core.CategoryRevenue, Amount: core.Money{Cents: 100}},
	}, window)
	second := core.BuildGrid([]core.BudgetItem{
		{BuildingID: "b1", Month: core.NewMonth(2026, time.January), Category: core.CategoryRevenue, Amount: core.Money{Cents: 200}},
	}, window)

	if err := e.ExportEntityRollup(ctx, entity, first); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := e.ExportEntityRollup(ctx, entity, second); err != nil {
		t.Fatalf("second export: %v", err)
	}

	if got := len(e.Exports()); got != 2 {
		t.Errorf("exports = %d, want 2", got)
	}
	latest, ok := e.Latest("entity-1")
	if !ok {
		t.Fatal("no export for entity-1")
	}
	if latest.Grid.GrandTotal.Cents != 200 {
		t.Errorf("latest grand total = %d, want 200", latest.Grid.GrandTotal.Cents)
	}

	if _, ok := e.Latest("unknown"); ok {
		t.Error("Latest returned an export for an unknown entity")
	}
}
