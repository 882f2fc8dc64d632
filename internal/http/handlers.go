package http

import (
	"net/http"

	"spendtracker/internal/auth"
	"spendtracker/internal/core"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "User registered successfully", sess)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Login successful", sess)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeOK(w, "", cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in core.CategoryInput
	if err := DecodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.categories.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, "Category created successfully", c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.categories.Delete(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Category deleted successfully", nil)
}
