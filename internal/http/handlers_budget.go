package http

import (
	"net/http"

	"ledger/internal/core"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	summary, err := s.ledger.Statistics(r.Context(), p.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", summary)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	b, err := s.ledger.Budget(p.Username).Budget(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", b)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Budget == nil {
		s.writeError(w, r, core.ErrInvalidAmount)
		return
	}

	p := principalFrom(r.Context())
	b, err := s.ledger.Budget(p.Username).SetBudget(r.Context(), *req.Budget)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "budget set", b)
}
