package mock

import (
	"net/http"
	"strings"
)

// Handler routes HTTP requests to the mock API endpoints.
type Handler struct {
	Server *Server
}

// ServeHTTP dispatches incoming HTTP requests based on URL path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Server.observe(r)
	switch r.URL.Path {
	case "/api/auth/login":
		h.Server.loginHandler(w, r)
	case "/api/auth/signup":
		h.Server.signupHandler(w, r)
	case "/api/auth/check-username":
		h.Server.checkUsernameHandler(w, r)
	case "/api/auth/refresh":
		h.Server.refreshes.Add(1)
		if h.Server.RefreshHandler != nil {
			h.Server.RefreshHandler(w, r)
		} else {
			h.Server.defaultRefreshHandler(w, r)
		}
	default:
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		if h.Server.ResourceHandler != nil {
			h.Server.ResourceHandler(w, r)
		} else {
			h.Server.defaultResourceHandler(w, r)
		}
	}
}
