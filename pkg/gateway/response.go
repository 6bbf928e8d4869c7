package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIResponse is the unified envelope every JSON endpoint returns.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// errorDetail is the body of 4xx/5xx responses.
type errorDetail struct {
	Detail string `json:"detail"`
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// writeOK wraps data in a successful envelope.
func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// writeFail wraps an expected failure (unknown id, empty pool) in a
// success=false envelope with HTTP 200.
func writeFail(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, APIResponse{Success: false, Message: message, Data: nil})
}

// writeError converts an internal error into an HTTP error with the message
// as detail.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorDetail{Detail: err.Error()})
}
