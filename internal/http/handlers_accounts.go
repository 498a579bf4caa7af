package http

import (
	"log/slog"
	"net/http"
	"time"

	"ledger/internal/accounts"
	"ledger/internal/core"
	"ledger/internal/log"
)

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	username := sanitizeInput(req.Username)
	if err := s.accounts.Register(r.Context(), username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "registration successful", core.Principal{Username: username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.accounts.Login(r.Context(), sanitizeInput(req.Username), req.Password)
	if err != nil {
		if accounts.IsAuthError(err) {
			_, msg := core.Outcome(err, "")
			writeJSON(w, http.StatusUnauthorized, envelope{Message: msg})
			return
		}
		s.writeError(w, r, err)
		return
	}

	token, exp, err := s.tokens.Issue(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).LogFields(r.Context(), slog.LevelInfo, "Login succeeded",
		log.NewFields().WithUser(p.Username).WithOperation(log.OpLogin))
	writeOK(w, http.StatusOK, "login successful", loginResponse{
		Token:     token,
		ExpiresAt: exp,
		Username:  p.Username,
		IsAdmin:   p.IsAdmin,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	username := r.PathValue("username")
	if err := s.accounts.ChangePassword(r.Context(), username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "password changed", core.Principal{Username: username})
}
