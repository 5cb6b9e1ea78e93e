package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"patrimonio/internal/core"
	"patrimonio/internal/ledger"
)

type budgetLineRequest struct {
	Category string     `json:"category"`
	Month    core.Month `json:"month"`
	Amount   core.Money `json:"amount"`
	Notes    string     `json:"notes"`
}

type saveBudgetResponse struct {
	Success      bool  `json:"success"`
	RowsAffected int64 `json:"rows_affected"`
}

// handleSaveBudget accepts a bulk batch of budget lines for one building.
// The body is an ordered JSON array; the batch is atomic, one bad item
// rejects the whole request and the response names its index.
func (s *Server) handleSaveBudget(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	var elements []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&elements); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	// Elements decode one at a time so a bad amount or month is reported
	// with the index of the offending item.
	lines := make([]core.BudgetLine, len(elements))
	for i, element := range elements {
		var item budgetLineRequest
		if err := json.Unmarshal(element, &item); err != nil {
			writeBatchError(w, i, "malformed budget line")
			return
		}
		lines[i] = core.BudgetLine{
			Category: sanitizeInput(item.Category),
			Month:    item.Month,
			Amount:   item.Amount,
			Notes:    sanitizeInput(item.Notes),
		}
	}

	affected, err := s.ledger.SaveBatch(r.Context(), buildingID, lines)
	if err != nil {
		var batchErr *ledger.BatchError
		switch {
		case errors.Is(err, ledger.ErrEmptyBatch):
			writeError(w, http.StatusBadRequest, "invalid_request", "batch must contain at least one item")
		case errors.As(err, &batchErr):
			writeBatchError(w, batchErr.Index, batchErr.Err.Error())
		case errors.Is(err, core.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "building not found")
		default:
			slog.ErrorContext(r.Context(), "Save budget batch failed", "building_id", buildingID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to save budget")
		}
		return
	}

	s.invalidateBuilding(buildingID)
	if building, err := s.store.GetBuilding(r.Context(), buildingID); err == nil {
		s.invalidateEntity(building.EntityID)
	}

	writeJSON(w, http.StatusOK, saveBudgetResponse{Success: true, RowsAffected: affected})
}

func (s *Server) handleBuildingGrid(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	window, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	key := buildingCacheKey(buildingID, window)
	if grid, found := s.gridCache.Get(key); found {
		writeJSON(w, http.StatusOK, grid)
		return
	}

	grid, err := s.ledger.ReadGrid(r.Context(), buildingID, window)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "building not found")
			return
		}
		slog.ErrorContext(r.Context(), "Read building grid failed", "building_id", buildingID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read budget")
		return
	}

	s.gridCache.Set(key, grid)
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handleEntityGrid(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("id")

	window, err := parseMonthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	key := entityCacheKey(entityID, window)
	if grid, found := s.gridCache.Get(key); found {
		writeJSON(w, http.StatusOK, grid)
		return
	}

	grid, err := s.ledger.ReadEntityGrid(r.Context(), entityID, window)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		}
		slog.ErrorContext(r.Context(), "Read entity grid failed", "entity_id", entityID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read budget")
		return
	}

	s.gridCache.Set(key, grid)
	writeJSON(w, http.StatusOK, grid)
}
