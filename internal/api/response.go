package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata describes the response itself.
type Metadata struct {
	Timestamp  time.Time `json:"timestamp"`
	Generation uint64    `json:"generation,omitempty"`
	Count      *int      `json:"count,omitempty"`
}

// APIError is the machine-readable error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	codeInvalidSelection = "INVALID_SELECTION"
	codeInvalidDistrict  = "INVALID_DISTRICT"
	codeInvalidBounds    = "INVALID_BOUNDS"
	codeValidation       = "VALIDATION_ERROR"
	codeNoSnapshot       = "NO_SNAPSHOT"
	codeSuperseded       = "SUPERSEDED"
	codeCancelled        = "CANCELLED"
	codeInternal         = "INTERNAL_ERROR"
)

func (h *Handler) respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("write response", "error", err)
	}
}

func (h *Handler) respondData(w http.ResponseWriter, data any, meta Metadata) {
	meta.Timestamp = h.now().UTC()
	h.respondJSON(w, http.StatusOK, &APIResponse{Status: "success", Data: data, Metadata: meta})
}

func (h *Handler) respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(context.Background(), level, "api error", "code", code, "status", status, "error", err)
	}

	h.respondJSON(w, status, &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: h.now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	})
}

func countOf(n int) *int {
	return &n
}
