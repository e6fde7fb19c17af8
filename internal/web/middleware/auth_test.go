package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func authedEcho(t *testing.T, want uuid.UUID) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Error("user id missing from context")
		}
		if got != want {
			t.Errorf("user id = %v, want %v", got, want)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	keys := map[string]uuid.UUID{"alice-key": alice, "bob-key": bob}

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantUser   uuid.UUID
	}{
		{"x-api-key", "X-API-Key", "alice-key", http.StatusOK, alice},
		{"bearer", "Authorization", "Bearer bob-key", http.StatusOK, bob},
		{"missing", "", "", http.StatusUnauthorized, uuid.Nil},
		{"invalid", "X-API-Key", "wrong", http.StatusUnauthorized, uuid.Nil},
		{"bearer invalid", "Authorization", "Bearer nope", http.StatusUnauthorized, uuid.Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth(keys)(authedEcho(t, tt.wantUser))
			req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
				var body struct {
					OK    *bool  `json:"ok"`
					Error string `json:"error"`
					Code  string `json:"code"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("body %q: %v", rec.Body.String(), err)
				}
				if body.OK == nil || *body.OK {
					t.Errorf("body %q lacks ok=false", rec.Body.String())
				}
				if body.Code == "" {
					t.Errorf("body %q lacks a code", rec.Body.String())
				}
			}
		})
	}
}
