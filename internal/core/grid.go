package core

import "sort"

// Grid is the two-dimensional (category x month) view of a building's or
// entity's budget, with totals pre-computed. It is produced by BuildGrid and
// never touches storage: missing (category, month) combinations are
// synthesized as zero here, not materialized as rows.
type Grid struct {
	Months       []Month   `json:"months"`
	Rows         []GridRow `json:"rows"`
	ColumnTotals []Money   `json:"column_totals"`
	GrandTotal   Money     `json:"grand_total"`
}

// GridRow is one category across the whole month window. Amounts is aligned
// index-for-index with Grid.Months.
type GridRow struct {
	Category string  `json:"category"`
	Amounts  []Money `json:"amounts"`
	Total    Money   `json:"total"`
}

// BuildGrid aggregates budget items into a grid over the given month window.
//
// Items outside the window are ignored. When several items share a
// (category, month) cell, as happens when the entity rollup feeds items from
// many buildings through here, their amounts sum. The category axis is the
// sorted union of
// categories present in the items, so a rollup shows every category any
// building populated, with absent buildings contributing zero.
//
// The grand total is computed from row totals; SumColumns over the same grid
// must return the identical value, which the tests pin down.
func BuildGrid(items []BudgetItem, window MonthRange) Grid {
	months := window.Months()
	index := make(map[string]int, len(months))
	for i, m := range months {
		index[m.Key()] = i
	}

	cells := make(map[string][]int64)
	for _, it := range items {
		if !window.Contains(it.Month) {
			continue
		}
		row, ok := cells[it.Category]
		if !ok {
			row = make([]int64, len(months))
			cells[it.Category] = row
		}
		row[index[it.Month.Key()]] += it.Amount.Cents
	}

	categories := make([]string, 0, len(cells))
	for c := range cells {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	grid := Grid{
		Months:       months,
		Rows:         make([]GridRow, 0, len(categories)),
		ColumnTotals: make([]Money, len(months)),
	}
	for _, category := range categories {
		row := GridRow{
			Category: category,
			Amounts:  make([]Money, len(months)),
		}
		for i, cents := range cells[category] {
			row.Amounts[i] = Money{Cents: cents}
			row.Total = row.Total.Add(Money{Cents: cents})
			grid.ColumnTotals[i] = grid.ColumnTotals[i].Add(Money{Cents: cents})
		}
		grid.GrandTotal = grid.GrandTotal.Add(row.Total)
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

// SumColumns recomputes the grand total from the column totals. For any grid
// built by BuildGrid it equals Grid.GrandTotal, which is computed from rows.
func (g Grid) SumColumns() Money {
	var total Money
	for _, c := range g.ColumnTotals {
		total = total.Add(c)
	}
	return total
}

// Row returns the row for a category, or false when the category is absent
// from the window.
func (g Grid) Row(category string) (GridRow, bool) {
	for _, r := range g.Rows {
		if r.Category == category {
			return r, true
		}
	}
	return GridRow{}, false
}

// Cell returns the amount for (category, month); absence means zero.
func (g Grid) Cell(category string, month Month) Money {
	row, ok := g.Row(category)
	if !ok {
		return Money{}
	}
	for i, m := range g.Months {
		if m.Equal(month.Time) {
			return row.Amounts[i]
		}
	}
	return Money{}
}
