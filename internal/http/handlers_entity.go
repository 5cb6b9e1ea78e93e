package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"patrimonio/internal/core"
)

type entityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entityResponse struct {
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toEntityResponse(e core.Entity) entityResponse {
	return entityResponse{
		EntityID:    e.EntityID,
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(timeLayout),
		UpdatedAt:   e.UpdatedAt.Format(timeLayout),
	}
}

type buildingRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type buildingResponse struct {
	BuildingID string `json:"building_id"`
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toBuildingResponse(b core.Building) buildingResponse {
	return buildingResponse{
		BuildingID: b.BuildingID,
		EntityID:   b.EntityID,
		Name:       b.Name,
		Address:    b.Address,
		CreatedAt:  b.CreatedAt.Format(timeLayout),
		UpdatedAt:  b.UpdatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	name := sanitizeInput(req.Name)
	description := sanitizeInput(req.Description)

	if err := (core.Entity{Name: name}).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	entity, err := s.store.CreateEntity(r.Context(), name, description)
	if err != nil {
		slog.ErrorContext(r.Context(), "Create entity failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create entity")
		return
	}
	writeJSON(w, http.StatusCreated, toEntityResponse(entity))
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.store.ListEntities(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List entities failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list entities")
		return
	}
	out := make([]entityResponse, 0, len(entities))
	for _, e := range entities {
		out = append(out, toEntityResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": out})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := s.store.GetEntity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err, "get entity")
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(entity))
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	name := sanitizeInput(req.Name)
	if err := (core.Entity{Name: name}).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	entityID := r.PathValue("id")
	if err := s.store.UpdateEntity(r.Context(), entityID, name, sanitizeInput(req.Description)); err != nil {
		s.writeStoreError(w, r, err, "update entity")
		return
	}
	entity, err := s.store.GetEntity(r.Context(), entityID)
	if err != nil {
		s.writeStoreError(w, r, err, "reload entity")
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(entity))
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")
	if err := s.store.DeleteEntity(r.Context(), entityID); err != nil {
		s.writeStoreError(w, r, err, "delete entity")
		return
	}
	// The cascade dropped the entity's buildings and their budget rows.
	s.invalidateEntity(entityID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateBuilding(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	name := sanitizeInput(req.Name)
	if err := (core.Building{Name: name}).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	building, err := s.store.CreateBuilding(r.Context(), r.PathValue("id"), name, sanitizeInput(req.Address))
	if err != nil {
		s.writeStoreError(w, r, err, "create building")
		return
	}
	writeJSON(w, http.StatusCreated, toBuildingResponse(building))
}

func (s *Server) handleListBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := s.store.ListBuildingsByEntity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err, "list buildings")
		return
	}
	out := make([]buildingResponse, 0, len(buildings))
	for _, b := range buildings {
		out = append(out, toBuildingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"buildings": out})
}

func (s *Server) handleGetBuilding(w http.ResponseWriter, r *http.Request) {
	building, err := s.store.GetBuilding(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err, "get building")
		return
	}
	writeJSON(w, http.StatusOK, toBuildingResponse(building))
}

func (s *Server) handleUpdateBuilding(w http.ResponseWriter, r *http.Request) {
	var req buildingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	name := sanitizeInput(req.Name)
	if err := (core.Building{Name: name}).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	buildingID := r.PathValue("id")
	if err := s.store.UpdateBuilding(r.Context(), buildingID, name, sanitizeInput(req.Address)); err != nil {
		s.writeStoreError(w, r, err, "update building")
		return
	}
	building, err := s.store.GetBuilding(r.Context(), buildingID)
	if err != nil {
		s.writeStoreError(w, r, err, "reload building")
		return
	}
	writeJSON(w, http.StatusOK, toBuildingResponse(building))
}

func (s *Server) handleDeleteBuilding(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")
	building, err := s.store.GetBuilding(r.Context(), buildingID)
	if err != nil {
		s.writeStoreError(w, r, err, "get building")
		return
	}
	if err := s.store.DeleteBuilding(r.Context(), buildingID); err != nil {
		s.writeStoreError(w, r, err, "delete building")
		return
	}
	s.invalidateBuilding(buildingID)
	s.invalidateEntity(building.EntityID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	slog.ErrorContext(r.Context(), "Storage operation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "storage operation failed")
}
