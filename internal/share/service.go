// Package share issues and resolves unauthenticated, time-limited links to
// an entity's budget rollup.
package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"patrimonio/internal/core"
)

// DefaultTTL is how long a share link stays live after issuance.
const DefaultTTL = 365 * 24 * time.Hour

const tokenBytes = 32

var (
	// ErrInvalidToken covers tokens that were never issued or were revoked.
	// Resolvers must not distinguish the two cases to callers beyond the
	// error code; both answer 404.
	ErrInvalidToken = errors.New("invalid share token")
	// ErrExpiredToken covers tokens that exist but whose expiry has passed.
	ErrExpiredToken = errors.New("expired share token")
)

// Store is the persistence port for share tokens.
type Store interface {
	EntityExists(ctx context.Context, entityID string) error
	InsertShareToken(ctx context.Context, token core.ShareToken) error
	GetShareToken(ctx context.Context, token string) (core.ShareToken, error)
	LiveShareToken(ctx context.Context, entityID string, now time.Time) (core.ShareToken, error)
	DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteShareTokensForEntity(ctx context.Context, entityID string) (int64, error)
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// Issue returns a live share token for the entity. If one already exists it
// is reused, so repeated issuance is idempotent while a link is live; a new
// token is minted only when none is.
func (s *Service) Issue(ctx context.Context, entityID string) (core.ShareToken, error) {
	if err := s.store.EntityExists(ctx, entityID); err != nil {
		return core.ShareToken{}, err
	}

	now := s.now().UTC()
	existing, err := s.store.LiveShareToken(ctx, entityID, now)
	if err == nil {
		slog.InfoContext(ctx, "Reusing live share token", "entity_id", entityID)
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.ShareToken{}, fmt.Errorf("look up live token: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return core.ShareToken{}, fmt.Errorf("generate token: %w", err)
	}

	record := core.ShareToken{
		Token:     token,
		EntityID:  entityID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.InsertShareToken(ctx, record); err != nil {
		return core.ShareToken{}, fmt.Errorf("insert token: %w", err)
	}

	slog.InfoContext(ctx, "Issued share token",
		"entity_id", entityID, "expires_at", record.ExpiresAt)
	return record, nil
}

// Resolve maps a presented token to the entity it grants access to. Unknown
// tokens and expired tokens fail with distinct errors so the handler can
// report which, without ever leaking whether a revoked token once existed.
func (s *Service) Resolve(ctx context.Context, token string) (core.ShareToken, error) {
	if token == "" {
		return core.ShareToken{}, ErrInvalidToken
	}
	record, err := s.store.GetShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ShareToken{}, ErrInvalidToken
		}
		return core.ShareToken{}, fmt.Errorf("look up token: %w", err)
	}
	if record.Expired(s.now().UTC()) {
		return core.ShareToken{}, ErrExpiredToken
	}
	return record, nil
}

// RevokeForEntity deletes every token of the entity, live or expired. A
// revoked token becomes indistinguishable from one that never existed.
func (s *Service) RevokeForEntity(ctx context.Context, entityID string) (int64, error) {
	if err := s.store.EntityExists(ctx, entityID); err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteShareTokensForEntity(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	slog.InfoContext(ctx, "Revoked share tokens", "entity_id", entityID, "deleted", deleted)
	return deleted, nil
}

// PurgeExpired removes rows whose expiry has passed. Expiry itself never
// depends on this running; resolution checks the timestamp.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteExpiredShareTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "Purged expired share tokens", "deleted", deleted)
	}
	return deleted, nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
