package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// SameOrigin returns middleware that rejects cross-site state-changing
// requests. Browser-sent metadata is checked in order: Origin, then Referer,
// then Sec-Fetch-Site. A request carrying none of them (curl, API clients)
// is allowed; API key auth is the real gate, this blocks CSRF from browsers.
//
// extraOrigins lists additional accepted origins (scheme://host[:port])
// alongside the request's own host.
func SameOrigin(extraOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(extraOrigins))
	for _, o := range extraOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[strings.ToLower(o)] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if ok, src := originAllowed(r, allowed); !ok {
				slog.Warn("cross-site request rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"source", src,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"ok":false,"error":"cross-site request rejected","code":"CROSS_SITE"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(r *http.Request, allowed map[string]bool) (bool, string) {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return matchesHost(origin, r, allowed), origin
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		return matchesHost(referer, r, allowed), referer
	}
	switch site := r.Header.Get("Sec-Fetch-Site"); site {
	case "":
		return true, ""
	case "same-origin", "none":
		return true, site
	default:
		return false, "Sec-Fetch-Site: " + site
	}
}

func matchesHost(raw string, r *http.Request, allowed map[string]bool) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	return allowed[origin]
}
