package http

import (
	"net/http"

	"ledger/internal/core"
)

type recordView struct {
	Index int `json:"index"`
	core.Record
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	records, err := s.ledger.Records(p.Username).List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]recordView, len(records))
	for i, rec := range records {
		views[i] = recordView{Index: i, Record: rec}
	}
	writeOK(w, http.StatusOK, "", views)
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validateNew(); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).Add(r.Context(),
		*req.Amount,
		sanitizeInput(*req.Category),
		sanitizeInput(deref(req.Date)),
		sanitizeInput(deref(req.Remark)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "record added", rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).Update(r.Context(), index, req.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "record updated", recordView{Index: index, Record: rec})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).Delete(r.Context(), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "record deleted", rec)
}

func (s *Server) handleGetRecordByID(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", rec)
}

func (s *Server) handleUpdateRecordByID(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).UpdateByID(r.Context(), r.PathValue("id"), req.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "record updated", rec)
}

func (s *Server) handleDeleteRecordByID(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	rec, err := s.ledger.Records(p.Username).DeleteByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "record deleted", rec)
}
