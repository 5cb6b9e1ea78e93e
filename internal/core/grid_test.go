package core

import (
	"testing"
	"time"
)

func item(building, category string, month Month, cents int64) BudgetItem {
	return BudgetItem{
		BuildingID: building,
		Category:   category,
		Month:      month,
		Amount:     Money{Cents: cents},
	}
}

func TestBuildGridTotals(t *testing.T) {
	jan := NewMonth(2025, time.January)
	feb := NewMonth(2025, time.February)
	window := MonthRange{From: jan, To: feb}

	items := []BudgetItem{
		item("b1", CategoryRevenue, jan, 10000),
		item("b1", CategoryRevenue, feb, 20000),
		item("b1", CategoryOperatingExpenses, jan, -5000),
		item("b1", CategoryDebtService, feb, 0),
	}

	grid := BuildGrid(items, window)

	if len(grid.Months) != 2 {
		t.Fatalf("expected 2 months, got %d", len(grid.Months))
	}
	if len(grid.Rows) != 3 {
		t.Fatalf("expected 3 category rows, got %d", len(grid.Rows))
	}

	rev, ok := grid.Row(CategoryRevenue)
	if !ok {
		t.Fatal("missing Revenue row")
	}
	if rev.Total.Cents != 30000 {
		t.Fatalf("Revenue row total = %d, want 30000", rev.Total.Cents)
	}
	if grid.ColumnTotals[0].Cents != 5000 {
		t.Fatalf("January column total = %d, want 5000", grid.ColumnTotals[0].Cents)
	}
	if grid.ColumnTotals[1].Cents != 20000 {
		t.Fatalf("February column total = %d, want 20000", grid.ColumnTotals[1].Cents)
	}
	if grid.GrandTotal.Cents != 25000 {
		t.Fatalf("grand total = %d, want 25000", grid.GrandTotal.Cents)
	}
}

// Grand total computed from rows must equal the grand total recomputed from
// columns, including with negative and zero amounts in the mix.
func TestGrandTotalRowColumnEquality(t *testing.T) {
	jan := NewMonth(2025, time.January)
	window := MonthRange{From: jan, To: NewMonth(2025, time.June)}

	items := []BudgetItem{
		item("b1", CategoryRevenue, jan, 123456),
		item("b1", CategoryRent, NewMonth(2025, time.March), -98765),
		item("b1", CategoryCapitalExpenses, NewMonth(2025, time.June), 0),
		item("b2", CategoryRevenue, jan, -1),
		item("b2", "Custom Category", NewMonth(2025, time.May), 333),
	}

	grid := BuildGrid(items, window)
	if grid.GrandTotal != grid.SumColumns() {
		t.Fatalf("row-sum grand total %v != column-sum grand total %v",
			grid.GrandTotal, grid.SumColumns())
	}
}

func TestBuildGridEntityRollup(t *testing.T) {
	jan := NewMonth(2025, time.January)
	window := MonthRange{From: jan, To: jan}

	// b1 has 100.00 Revenue, b2 has 50.00 Revenue; Rent only exists on b1.
	items := []BudgetItem{
		item("b1", CategoryRevenue, jan, 10000),
		item("b2", CategoryRevenue, jan, 5000),
		item("b1", CategoryRent, jan, 7700),
	}

	grid := BuildGrid(items, window)

	if got := grid.Cell(CategoryRevenue, jan); got.Cents != 15000 {
		t.Fatalf("rollup Revenue/Jan = %d, want 15000", got.Cents)
	}
	// b2 contributes 0 to Rent; the category still appears in the union.
	if got := grid.Cell(CategoryRent, jan); got.Cents != 7700 {
		t.Fatalf("rollup Rent/Jan = %d, want 7700", got.Cents)
	}
	if len(grid.Rows) != 2 {
		t.Fatalf("rollup should union categories across buildings, got %d rows", len(grid.Rows))
	}
}

func TestBuildGridIgnoresItemsOutsideWindow(t *testing.T) {
	window := MonthRange{From: NewMonth(2025, time.January), To: NewMonth(2025, time.February)}
	items := []BudgetItem{
		item("b1", CategoryRevenue, NewMonth(2024, time.December), 9999),
		item("b1", CategoryRevenue, NewMonth(2025, time.January), 100),
	}
	grid := BuildGrid(items, window)
	if grid.GrandTotal.Cents != 100 {
		t.Fatalf("grand total = %d, want 100", grid.GrandTotal.Cents)
	}
}

func TestGridCellAbsenceIsZero(t *testing.T) {
	window := MonthRange{From: NewMonth(2025, time.January), To: NewMonth(2025, time.February)}
	grid := BuildGrid(nil, window)
	if got := grid.Cell(CategoryRevenue, NewMonth(2025, time.January)); got.Cents != 0 {
		t.Fatalf("absent cell should read zero, got %d", got.Cents)
	}
	if len(grid.Rows) != 0 {
		t.Fatalf("empty input should build no rows, got %d", len(grid.Rows))
	}
	if grid.GrandTotal.Cents != 0 {
		t.Fatalf("empty grand total = %d", grid.GrandTotal.Cents)
	}
}
