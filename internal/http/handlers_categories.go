package http

import (
	"net/http"

	"ledger/internal/core"
)

type categoryView struct {
	Kind core.CategoryKind `json:"kind"`
	Name string            `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	tax, err := s.taxonomy.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// both kinds are always present so clients need no nil checks
	out := map[core.CategoryKind][]string{}
	for _, k := range core.Kinds() {
		out[k] = append([]string{}, tax[k]...)
	}
	writeOK(w, http.StatusOK, "", out)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	kind, name, err := categoryPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.taxonomy.Add(r.Context(), kind, name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "category added", categoryView{Kind: kind, Name: name})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	kind, name, err := categoryPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.taxonomy.Remove(r.Context(), kind, name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "category removed", categoryView{Kind: kind, Name: name})
}

func categoryPath(r *http.Request) (core.CategoryKind, string, error) {
	kind, err := core.ParseCategoryKind(r.PathValue("kind"))
	if err != nil {
		return "", "", err
	}
	return kind, sanitizeInput(r.PathValue("name")), nil
}
