package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"patrimonio/internal/core"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// errorBody is the single error envelope every endpoint uses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Index points at the offending item of a rejected batch.
	Index *int `json:"index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeBatchError(w http.ResponseWriter, index int, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{
		Error: errorDetail{Code: "invalid_item", Message: message, Index: &index},
	})
}

// parseMonthRange reads the optional from/to query parameters ("2006-01").
// Both must be given together; with neither, the rolling default window
// starting at the current month applies.
func parseMonthRange(r *http.Request) (core.MonthRange, error) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))

	if fromStr == "" && toStr == "" {
		return core.DefaultWindow(time.Now()), nil
	}
	if fromStr == "" || toStr == "" {
		return core.MonthRange{}, fmt.Errorf("from and to must be given together: %w", core.ErrInvalidMonth)
	}

	from, err := core.ParseMonth(fromStr)
	if err != nil {
		return core.MonthRange{}, err
	}
	to, err := core.ParseMonth(toStr)
	if err != nil {
		return core.MonthRange{}, err
	}
	if from.After(to.Time) {
		return core.MonthRange{}, fmt.Errorf("from after to: %w", core.ErrInvalidMonth)
	}
	return core.MonthRange{From: from, To: to}, nil
}

// extractClientIP returns the forwarded client address when present, else
// the direct peer.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		ip := strings.TrimSpace(parts[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
