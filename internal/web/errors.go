package web

// errors.go provides unified error response handling for the web layer.
//
// Every error path logs the technical detail server-side, keyed by the chi
// request id, and returns a compact JSON body with a machine-readable code.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses. OK is
// always false; it lets clients branch on the same field the import results
// carry.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes a JSON error response and logs it with request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", message,
		"code", code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// writeJSON encodes v as JSON. Encoding errors are logged, headers are
// already gone by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
