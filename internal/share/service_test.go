package share

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"patrimonio/internal/core"
)

type fakeStore struct {
	entities map[string]bool
	tokens   map[string]core.ShareToken
}

func newFakeStore(entities ...string) *fakeStore {
	s := &fakeStore{
		entities: make(map[string]bool),
		tokens:   make(map[string]core.ShareToken),
	}
	for _, e := range entities {
		s.entities[e] = true
	}
	return s
}

func (s *fakeStore) EntityExists(_ context.Context, entityID string) error {
	if !s.entities[entityID] {
		return fmt.Errorf("entity %s: %w", entityID, core.ErrNotFound)
	}
	return nil
}

func (s *fakeStore) InsertShareToken(_ context.Context, token core.ShareToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *fakeStore) GetShareToken(_ context.Context, token string) (core.ShareToken, error) {
	t, ok := s.tokens[token]
	if !ok {
		return core.ShareToken{}, fmt.Errorf("token: %w", core.ErrNotFound)
	}
	return t, nil
}

func (s *fakeStore) LiveShareToken(_ context.Context, entityID string, now time.Time) (core.ShareToken, error) {
	var best core.ShareToken
	found := false
	for _, t := range s.tokens {
		if t.EntityID != entityID || t.Expired(now) {
			continue
		}
		if !found || t.CreatedAt.After(best.CreatedAt) {
			best = t
			found = true
		}
	}
	if !found {
		return core.ShareToken{}, fmt.Errorf("live token: %w", core.ErrNotFound)
	}
	return best, nil
}

func (s *fakeStore) DeleteExpiredShareTokens(_ context.Context, now time.Time) (int64, error) {
	var deleted int64
	for key, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) DeleteShareTokensForEntity(_ context.Context, entityID string) (int64, error) {
	var deleted int64
	for key, t := range s.tokens {
		if t.EntityID == entityID {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

func newTestService(store Store, at time.Time) *Service {
	svc := NewService(store, 0)
	svc.now = func() time.Time { return at }
	return svc
}

func TestIssueCreatesToken(t *testing.T) {
	store := newFakeStore("entity-1")
	issuedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, issuedAt)

	token, err := svc.Issue(context.Background(), "entity-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token.Token == "" {
		t.Fatal("empty token value")
	}
	if token.EntityID != "entity-1" {
		t.Errorf("entity = %s, want entity-1", token.EntityID)
	}
	if want := issuedAt.Add(DefaultTTL); !token.ExpiresAt.Equal(want) {
		t.Errorf("expires = %v, want %v", token.ExpiresAt, want)
	}
	// 32 random bytes in unpadded URL-safe base64.
	if len(token.Token) != 43 {
		t.Errorf("token length = %d, want 43", len(token.Token))
	}
}

func TestIssueReusesLiveToken(t *testing.T) {
	store := newFakeStore("entity-1")
	svc := newTestService(store, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if first.Token != second.Token {
		t.Error("second issuance minted a new token while the first was live")
	}
	if len(store.tokens) != 1 {
		t.Errorf("stored tokens = %d, want 1", len(store.tokens))
	}
}

func TestIssueMintsNewTokenAfterExpiry(t *testing.T) {
	store := newFakeStore("entity-1")
	issuedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, issuedAt)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}

	svc.now = func() time.Time { return first.ExpiresAt.Add(time.Hour) }
	second, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if first.Token == second.Token {
		t.Error("expired token was reused")
	}
}

func TestIssueUnknownEntity(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())

	if _, err := svc.Issue(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	store := newFakeStore("entity-1")
	issuedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, issuedAt)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	t.Run("live token resolves", func(t *testing.T) {
		got, err := svc.Resolve(ctx, token.Token)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got.EntityID != "entity-1" {
			t.Errorf("entity = %s, want entity-1", got.EntityID)
		}
	})

	t.Run("unknown token is invalid", func(t *testing.T) {
		if _, err := svc.Resolve(ctx, "never-issued"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("empty token is invalid", func(t *testing.T) {
		if _, err := svc.Resolve(ctx, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("exact expiry instant is expired", func(t *testing.T) {
		svc.now = func() time.Time { return token.ExpiresAt }
		defer func() { svc.now = func() time.Time { return issuedAt } }()
		if _, err := svc.Resolve(ctx, token.Token); !errors.Is(err, ErrExpiredToken) {
			t.Fatalf("err = %v, want ErrExpiredToken", err)
		}
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		svc.now = func() time.Time { return token.ExpiresAt.Add(time.Minute) }
		defer func() { svc.now = func() time.Time { return issuedAt } }()
		if _, err := svc.Resolve(ctx, token.Token); !errors.Is(err, ErrExpiredToken) {
			t.Fatalf("err = %v, want ErrExpiredToken", err)
		}
	})
}

func TestRevokeForEntity(t *testing.T) {
	store := newFakeStore("entity-1", "entity-2")
	svc := newTestService(store, time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	tok1, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("Issue entity-1: %v", err)
	}
	tok2, err := svc.Issue(ctx, "entity-2")
	if err != nil {
		t.Fatalf("Issue entity-2: %v", err)
	}

	deleted, err := svc.RevokeForEntity(ctx, "entity-1")
	if err != nil {
		t.Fatalf("RevokeForEntity: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := svc.Resolve(ctx, tok1.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked token resolves: %v", err)
	}
	if _, err := svc.Resolve(ctx, tok2.Token); err != nil {
		t.Errorf("other entity's token broken by revoke: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	store := newFakeStore("entity-1")
	issuedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, issuedAt)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "entity-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	deleted, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 while the token is live", deleted)
	}

	svc.now = func() time.Time { return token.ExpiresAt }
	deleted, err = svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if len(store.tokens) != 0 {
		t.Errorf("stored tokens = %d, want 0", len(store.tokens))
	}
}
