package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"patrimonio/internal/core"
	"patrimonio/internal/share"
)

type shareTokenResponse struct {
	Token     string `json:"token"`
	Path      string `json:"path"`
	ExpiresAt string `json:"expires_at"`
}

type sharedGridResponse struct {
	Entity sharedEntity `json:"entity"`
	Grid   core.Grid    `json:"grid"`
}

type sharedEntity struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
}

func (s *Server) handleIssueShare(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	token, err := s.shares.Issue(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		}
		slog.ErrorContext(r.Context(), "Issue share token failed", "entity_id", entityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to issue share token")
		return
	}

	writeJSON(w, http.StatusCreated, shareTokenResponse{
		Token:     token.Token,
		Path:      "/shared/" + token.Token,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	revoked, err := s.shares.RevokeForEntity(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		}
		slog.ErrorContext(r.Context(), "Revoke share tokens failed", "entity_id", entityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to revoke share tokens")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"revoked": revoked})
}

// handleShared serves an entity rollup to the bearer of a live share token.
// No other credential is required and no write is possible through this
// route.
func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	token, err := s.shares.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		switch {
		case errors.Is(err, share.ErrInvalidToken):
			writeError(w, http.StatusNotFound, "invalid_token", "share link not found")
		case errors.Is(err, share.ErrExpiredToken):
			writeError(w, http.StatusGone, "expired_token", "share link has expired")
		default:
			slog.ErrorContext(r.Context(), "Resolve share token failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to resolve share link")
		}
		return
	}

	window, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entity, err := s.store.GetEntity(r.Context(), token.EntityID)
	if err != nil {
		s.writeStoreError(w, r, err, "get shared entity")
		return
	}

	grid, err := s.ledger.ReadEntityGrid(r.Context(), token.EntityID, window)
	if err != nil {
		slog.ErrorContext(r.Context(), "Read shared grid failed", "entity_id", token.EntityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read budget")
		return
	}

	writeJSON(w, http.StatusOK, sharedGridResponse{
		Entity: sharedEntity{EntityID: entity.EntityID, Name: entity.Name},
		Grid:   grid,
	})
}
