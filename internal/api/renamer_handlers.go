package api

import (
	"net/http"
	"strings"
)

type renamerFiles struct {
	Files []string `json:"files"`
}

func (s *Server) getRenamerFiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, renamerFiles{Files: s.session.Get()})
}

// setRenamerFiles replaces the selection. Blank entries are dropped.
func (s *Server) setRenamerFiles(w http.ResponseWriter, r *http.Request) {
	var body renamerFiles
	if !decodeBody(w, r, &body) {
		return
	}
	files := make([]string, 0, len(body.Files))
	for _, f := range body.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	s.session.Set(files)
	writeJSON(w, http.StatusOK, renamerFiles{Files: s.session.Get()})
}

func (s *Server) clearRenamerFiles(w http.ResponseWriter, _ *http.Request) {
	s.session.Clear()
	w.WriteHeader(http.StatusNoContent)
}
