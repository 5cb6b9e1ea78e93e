package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBudgetLineValidate(t *testing.T) {
	valid := BudgetLine{
		Category: CategoryRevenue,
		Month:    NewMonth(2025, time.January),
		Amount:   Money{Cents: 50000},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid line rejected: %v", err)
	}

	t.Run("negative amount allowed", func(t *testing.T) {
		l := valid
		l.Amount = Money{Cents: -50000}
		if err := l.Validate(); err != nil {
			t.Fatalf("negative amount should be valid: %v", err)
		}
	})

	t.Run("empty category", func(t *testing.T) {
		l := valid
		l.Category = "   "
		if err := l.Validate(); !errors.Is(err, ErrEmptyCategory) {
			t.Fatalf("expected ErrEmptyCategory, got %v", err)
		}
	})

	t.Run("custom category allowed", func(t *testing.T) {
		l := valid
		l.Category = "Ground Lease"
		if err := l.Validate(); err != nil {
			t.Fatalf("custom category should be valid: %v", err)
		}
	})

	t.Run("zero month", func(t *testing.T) {
		l := valid
		l.Month = Month{}
		if err := l.Validate(); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("expected ErrInvalidMonth, got %v", err)
		}
	})

	t.Run("notes too long", func(t *testing.T) {
		l := valid
		l.Notes = strings.Repeat("x", 501)
		if err := l.Validate(); !errors.Is(err, ErrNotesTooLong) {
			t.Fatalf("expected ErrNotesTooLong, got %v", err)
		}
	})
}

func TestShareTokenExpired(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	tok := ShareToken{ExpiresAt: now}

	// The boundary counts as expired: now >= expires_at.
	if !tok.Expired(now) {
		t.Fatal("token expiring exactly now should be expired")
	}
	if !tok.Expired(now.Add(time.Second)) {
		t.Fatal("token past expiry should be expired")
	}
	if tok.Expired(now.Add(-time.Second)) {
		t.Fatal("token before expiry should be live")
	}
}

func TestStandardCategories(t *testing.T) {
	cats := StandardCategories()
	if len(cats) != 5 {
		t.Fatalf("expected 5 standard categories, got %d", len(cats))
	}
	if cats[0] != CategoryRevenue {
		t.Fatalf("first category = %q", cats[0])
	}
}
