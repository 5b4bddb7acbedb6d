package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-pkgz/auth/token"
	"github.com/gorilla/mux"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
)

// apiError is the body of every failed API response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pasteList is the body of GET /api/pastes.
type pasteList struct {
	Pastes     []store.Paste `json:"pastes"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalPages int           `json:"total_pages"`
	Total      int           `json:"total"`
}

// me is the body of GET /api/me.
type me struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (h *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Logf("ERROR failed to write json: %v", err)
	}
}

// writeAPIError maps a service error to a status code and writes it.
func (h *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Logf("ERROR %s %s: %v", r.Method, r.URL.Path, err)
	}
	class := service.Class(err)
	if class == "" {
		class = "backend"
	}
	h.writeJSON(w, code, apiError{Code: class, Message: errorMessage(err)})
}

// readJSON decodes the request body into v, rejecting unknown fields.
func (h *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.options.MaxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: bad json: %v", service.ErrValidation, err)
	}
	return nil
}

func (h *Server) apiGetMe(w http.ResponseWriter, r *http.Request) {
	usr, _ := token.GetUserInfo(r)
	res := me{ID: usr.ID, Name: usr.Name, Email: usr.Email, Picture: usr.Picture}
	profile, err := h.service.User(r.Context(), usr.ID)
	switch {
	case err == nil:
		res.Name, res.Email = profile.Name, profile.Email
	case !errors.Is(err, service.ErrUserNotFound):
		h.writeAPIError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// apiListPastes returns a page of the user pastes filtered by q.
func (h *Server) apiListPastes(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	q := r.URL.Query()
	num, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		num = 1
	}
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil {
		size = h.options.PageSize
	}
	list, err := sess.Browse(r.Context(), q.Get("q"), size, num)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pasteList{
		Pastes:     list.Items,
		Page:       list.Number,
		Size:       list.Size,
		TotalPages: list.TotalPages,
		Total:      list.Total,
	})
}

func (h *Server) apiCreatePaste(w http.ResponseWriter, r *http.Request) {
	var d paste.Draft
	if err := h.readJSON(w, r, &d); err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	sess, err := h.session(r)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	p, err := sess.Create(r.Context(), d)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/pastes/"+p.ID)
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Server) apiGetPaste(w http.ResponseWriter, r *http.Request) {
	usr, _ := token.GetUserInfo(r)
	p, err := h.service.Get(r.Context(), mux.Vars(r)["id"], usr.ID)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Server) apiUpdatePaste(w http.ResponseWriter, r *http.Request) {
	var patch service.Patch
	if err := h.readJSON(w, r, &patch); err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	sess, err := h.session(r)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	p, err := sess.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Server) apiDeletePaste(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	if err := sess.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
