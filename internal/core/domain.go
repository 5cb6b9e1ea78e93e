package core

import (
	"errors"
	"strings"
	"time"
)

// Standard budget categories. The vocabulary is open: callers may introduce
// new categories, the store only enforces uniqueness per (building, month,
// category).
const (
	CategoryRevenue           = "Revenue"
	CategoryRent              = "Rent"
	CategoryOperatingExpenses = "Operating Expenses"
	CategoryDebtService       = "Debt Service"
	CategoryCapitalExpenses   = "Capital Expenses"
)

// StandardCategories returns the seeded category vocabulary in display order.
func StandardCategories() []string {
	return []string{
		CategoryRevenue,
		CategoryRent,
		CategoryOperatingExpenses,
		CategoryDebtService,
		CategoryCapitalExpenses,
	}
}

type (
	// Entity is a portfolio that owns zero or more buildings.
	Entity struct {
		EntityID    string
		Name        string
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Building belongs to exactly one entity; the owner is immutable after
	// creation.
	Building struct {
		BuildingID string
		EntityID   string
		Name       string
		Address    string
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// BudgetItem is one stored ledger row. The triple (BuildingID, Month,
	// Category) is unique; a second write to the same triple updates in
	// place.
	BudgetItem struct {
		BudgetItemID string
		BuildingID   string
		Month        Month
		Category     string
		Amount       Money
		Notes        string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// BudgetLine is one tuple of a bulk-save batch, before it is persisted.
	BudgetLine struct {
		Category string
		Month    Month
		Amount   Money
		Notes    string
	}

	// ShareToken grants time-limited read-only access to one entity's
	// rollup. Expiry is fixed at creation, not sliding.
	ShareToken struct {
		Token     string
		EntityID  string
		CreatedAt time.Time
		ExpiresAt time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyName       = errors.New("empty name")
	ErrNotFound        = errors.New("not found")
	ErrNotesTooLong    = errors.New("notes too long (max 500 characters)")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrCategoryTooLong = errors.New("category too long (max 100 characters)")
)

// Validate checks a single batch line. Amounts may be negative or zero for
// every category; only the category and month carry structural constraints.
func (l BudgetLine) Validate() error {
	if strings.TrimSpace(l.Category) == "" {
		return ErrEmptyCategory
	}
	if len(l.Category) > 100 {
		return ErrCategoryTooLong
	}
	if err := l.Month.Validate(); err != nil {
		return err
	}
	if len(l.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}

func (e Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return ErrNameTooLong
	}
	return nil
}

func (b Building) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if len(b.Name) > 200 {
		return ErrNameTooLong
	}
	return nil
}

// Expired reports whether the token is inert at instant now. The boundary
// counts as expired: a token with ExpiresAt == now must not resolve.
func (t ShareToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
