package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSameOrigin(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		extra   []string
		want    int
	}{
		{"get passes without checks", http.MethodGet,
			map[string]string{"Origin": "https://evil.example"}, nil, http.StatusOK},
		{"post without browser metadata", http.MethodPost,
			nil, nil, http.StatusOK},
		{"post same origin", http.MethodPost,
			map[string]string{"Origin": "https://app.example.com"}, nil, http.StatusOK},
		{"post cross origin", http.MethodPost,
			map[string]string{"Origin": "https://evil.example"}, nil, http.StatusForbidden},
		{"post allowed extra origin", http.MethodPost,
			map[string]string{"Origin": "https://trusted.example"},
			[]string{"https://trusted.example"}, http.StatusOK},
		{"post null origin", http.MethodPost,
			map[string]string{"Origin": "null", "Referer": "https://app.example.com/import"}, nil, http.StatusOK},
		{"post referer fallback same host", http.MethodPost,
			map[string]string{"Referer": "https://app.example.com/import"}, nil, http.StatusOK},
		{"post referer fallback cross host", http.MethodPost,
			map[string]string{"Referer": "https://evil.example/"}, nil, http.StatusForbidden},
		{"post sec-fetch-site same-origin", http.MethodPost,
			map[string]string{"Sec-Fetch-Site": "same-origin"}, nil, http.StatusOK},
		{"post sec-fetch-site none", http.MethodPost,
			map[string]string{"Sec-Fetch-Site": "none"}, nil, http.StatusOK},
		{"post sec-fetch-site cross-site", http.MethodPost,
			map[string]string{"Sec-Fetch-Site": "cross-site"}, nil, http.StatusForbidden},
		{"origin checked before sec-fetch-site", http.MethodPost,
			map[string]string{"Origin": "https://evil.example", "Sec-Fetch-Site": "same-origin"}, nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := SameOrigin(tt.extra)(okHandler)
			req := httptest.NewRequest(tt.method, "https://app.example.com/api/import/events", nil)
			req.Host = "app.example.com"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				var body struct {
					OK   *bool  `json:"ok"`
					Code string `json:"code"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("body %q: %v", rec.Body.String(), err)
				}
				if body.OK == nil || *body.OK {
					t.Errorf("body %q lacks ok=false", rec.Body.String())
				}
				if body.Code != "CROSS_SITE" {
					t.Errorf("code = %q, want CROSS_SITE", body.Code)
				}
			}
		})
	}
}
