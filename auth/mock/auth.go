package mock

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// issue writes a token grant; a session cookie is set when withSession is true.
func (s *Server) issue(w http.ResponseWriter, username, role string, withSession bool, withRole bool) {
	token, err := s.createJWT(username, role, s.TokenLifetime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if withSession {
		sessionID := uuid.New().String()
		s.mu.Lock()
		s.sessions[sessionID] = username
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: sessionID, Path: "/", HttpOnly: true})
	}
	grant := map[string]interface{}{
		"accessToken": token,
		"expiresIn":   s.TokenLifetime.Seconds(),
	}
	if withRole {
		grant["role"] = role
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var input credentials
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	known, ok := s.users[input.Username]
	s.mu.Unlock()
	if !ok || known.password != input.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issue(w, input.Username, known.role, true, true)
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var input credentials
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Username == "" || input.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if input.Role == "" {
		input.Role = "customer"
	}
	s.mu.Lock()
	if _, exists := s.users[input.Username]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "username taken")
		return
	}
	s.users[input.Username] = user{password: input.Password, role: input.Role}
	s.mu.Unlock()
	s.issue(w, input.Username, input.Role, true, true)
}

func (s *Server) checkUsernameHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	s.mu.Lock()
	_, taken := s.users[username]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"available": !taken})
}

// defaultRefreshHandler renews the access token of the session cookie owner.
// The role is not restated.
func (s *Server) defaultRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.RefreshDelay > 0 {
		time.Sleep(s.RefreshDelay)
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing session")
		return
	}
	s.mu.Lock()
	username, ok := s.sessions[cookie.Value]
	known := s.users[username]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return
	}
	s.issue(w, username, known.role, false, false)
}
