package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/web/middleware"
)

// requireUser pulls the authenticated user id out of the request context.
// Auth middleware guards every /api route, so a miss means the route was
// wired outside the auth group.
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "no authenticated user in context", "AUTH_CONTEXT")
	}
	return userID, ok
}
