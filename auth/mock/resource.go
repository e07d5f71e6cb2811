package mock

import (
	"net/http"
	"strings"
)

// defaultResourceHandler simulates a protected API resource. It echoes the
// caller, method and path; DELETE answers 204.
func (s *Server) defaultResourceHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	subject, err := s.verifyJWT(raw)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user":   subject,
		"method": r.Method,
		"path":   r.URL.Path,
	})
}
