package google

import (
	"testing"
	"time"

	"patrimonio/internal/core"
)

func TestRollupValues(t *testing.T) {
	window := core.MonthRange{
		From: core.NewMonth(2026, time.January),
		To:   core.NewMonth(2026, time.February),
	}
	grid := core.BuildGrid([]core.BudgetItem{
		{BuildingID: "b1", Month: core.NewMonth(2026, time.January), Category: core.CategoryRevenue, Amount: core.Money{Cents: 150000}},
		{BuildingID: "b1", Month: core.NewMonth(2026, time.February), Category: core.CategoryRent, Amount: core.Money{Cents: 90000}},
	}, window)

	values := rollupValues(grid)

	// Header, two category rows, totals row.
	if len(values) != 4 {
		t.Fatalf("rows = %d, want 4", len(values))
	}
	header := values[0]
	if header[0] != "Category" || header[1] != "2026-01" || header[2] != "2026-02" || header[3] != "Total" {
		t.Errorf("header = %v", header)
	}

	totals := values[len(values)-1]
	if totals[0] != "Total" {
		t.Errorf("totals label = %v", totals[0])
	}
	if totals[len(totals)-1] != "2400.00" {
		t.Errorf("grand total = %v, want 2400.00", totals[len(totals)-1])
	}

	for _, row := range values[1 : len(values)-1] {
		if len(row) != len(header) {
			t.Errorf("row %v length = %d, want %d", row[0], len(row), len(header))
		}
	}
}

func TestTabName(t *testing.T) {
	c := &Client{tabPrefix: "Budget"}

	if got := c.tabName(core.Entity{EntityID: "e1", Name: "Fondo Nord"}); got != "Budget Fondo Nord" {
		t.Errorf("tabName = %q", got)
	}
	// Falls back to the ID when the name is blank.
	if got := c.tabName(core.Entity{EntityID: "e1", Name: "  "}); got != "Budget e1" {
		t.Errorf("tabName = %q", got)
	}
}
