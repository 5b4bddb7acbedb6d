// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-pkgz/auth/token"
	"github.com/gorilla/mux"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
	"github.com/iliafrenkel/snippetvault/src/view"
	"github.com/iliafrenkel/snippetvault/src/web/page"
)

// show renders a template with the data common for all the pages plus
// the given data and writes it with the status code.
func (h *Server) show(w http.ResponseWriter, r *http.Request, status int, data ...page.Data) {
	usr, _ := token.GetUserInfo(r)
	pcnt, ucnt, err := h.service.Totals(r.Context())
	if err != nil {
		h.log.Logf("WARN can't get totals: %v", err)
	}
	common := []page.Data{
		page.Brand(h.options.BrandName, h.options.BrandTagline),
		page.Version(h.options.Version),
		page.Totals(page.Stats{Pastes: pcnt, Users: ucnt}),
		page.User(usr),
	}

	html, err := page.New(h.templates, append(common, data...)...).Render()
	if err != nil {
		h.log.Logf("ERROR %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(html); err != nil {
		h.log.Logf("ERROR failed to write: %v", err)
	}
}

// showError shows the error page.
func (h *Server) showError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	h.show(w, r, code,
		page.Template("error.html"),
		page.Title("Error"),
		page.Error(code, msg),
	)
}

// showServiceError logs unexpected errors and shows an error page that fits
// the error.
func (h *Server) showServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Logf("ERROR %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		h.log.Logf("DEBUG %s %s: %v", r.Method, r.URL.Path, err)
	}
	if code == http.StatusUnauthorized {
		http.Redirect(w, r, "/sign-in?from="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}
	h.showError(w, r, code, errorMessage(err))
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch service.Class(err) {
	case "validation":
		return http.StatusBadRequest
	case "access":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorMessage returns a message for the end user.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, paste.ErrMissingField):
		return "Title, content and tag are required."
	case errors.Is(err, paste.ErrInvalidURL):
		return "Please enter a valid URL, including http:// or https://."
	case errors.Is(err, paste.ErrUnknownKind):
		return "Unknown content type."
	case errors.Is(err, service.ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, service.ErrWeakPassword):
		return fmt.Sprintf("Password should be at least %d characters.", service.MinPasswordLength)
	case errors.Is(err, service.ErrPasswordMismatch):
		return "Passwords don't match."
	case errors.Is(err, service.ErrMissingName):
		return "Name is required."
	case errors.Is(err, service.ErrEmailInUse):
		return "This email is already registered, try signing in."
	case errors.Is(err, service.ErrWrongCredentials):
		return "Invalid email or password."
	case errors.Is(err, service.ErrNotFound):
		return "There is no such paste."
	case errors.Is(err, service.ErrAccess):
		return "Please sign in first."
	}
	return "Something went wrong, please try again."
}

// session returns the view session of the current user.
func (h *Server) session(r *http.Request) (*view.Session, error) {
	usr, err := token.GetUserInfo(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrAccess, err)
	}
	return h.sessions.Session(usr.ID)
}

// safeFrom returns from if it is a local path, "/dashboard" otherwise.
func safeFrom(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return "/dashboard"
	}
	return from
}

// draftFromForm reads the editor form.
func draftFromForm(r *http.Request) paste.Draft {
	return paste.Draft{
		Title:       r.PostFormValue("title"),
		Tag:         r.PostFormValue("tag"),
		ContentType: r.PostFormValue("content_type"),
		Content:     r.PostFormValue("content"),
		Language:    r.PostFormValue("language"),
	}
}

// parseForm limits the body size and parses the form, showing the error
// page on failure.
func (h *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.options.MaxBodySize)
	if err := r.ParseForm(); err != nil {
		h.log.Logf("WARN parsing form failed: %v", err)
		h.showError(w, r, http.StatusBadRequest, "The form could not be read.")
		return false
	}
	return true
}

// handleGetHomePage shows the landing page, or the dashboard for users that
// are signed in.
func (h *Server) handleGetHomePage(w http.ResponseWriter, r *http.Request) {
	if usr, err := token.GetUserInfo(r); err == nil && usr.ID != "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.show(w, r, http.StatusOK, page.Template("index.html"), page.Title("Home"))
}

func (h *Server) handleGetSignIn(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, http.StatusOK,
		page.Template("sign-in.html"),
		page.Title("Sign in"),
		page.Providers(h.providers),
		page.From(safeFrom(r.URL.Query().Get("from"))),
	)
}

// handlePostSignIn checks the credentials and signs the user in with the
// local provider of the auth library.
func (h *Server) handlePostSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.PostFormValue("email")))
	password := r.PostFormValue("password")
	from := safeFrom(r.PostFormValue("from"))

	err := h.localLogin(w, r, email, password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, service.ErrWrongCredentials) {
			h.log.Logf("ERROR sign in failed: %v", err)
			status = http.StatusInternalServerError
		}
		h.show(w, r, status,
			page.Template("sign-in.html"),
			page.Title("Sign in"),
			page.Providers(h.providers),
			page.From(from),
			page.Message(errorMessage(err)),
		)
		return
	}
	http.Redirect(w, r, from, http.StatusSeeOther)
}

func (h *Server) handleGetSignUp(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, http.StatusOK, page.Template("sign-up.html"), page.Title("Sign up"))
}

// handlePostSignUp creates a local account and signs the user in.
func (h *Server) handlePostSignUp(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	reg := service.Registration{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
		Name:     r.PostFormValue("name"),
	}
	usr, err := h.service.Register(r.Context(), reg)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.log.Logf("ERROR sign up failed: %v", err)
		}
		h.show(w, r, code,
			page.Template("sign-up.html"),
			page.Title("Sign up"),
			page.Message(errorMessage(err)),
		)
		return
	}
	h.log.Logf("INFO new user %s", usr.ID)

	if err := h.localLogin(w, r, usr.Email, reg.Password); err != nil {
		h.log.Logf("ERROR sign in after sign up failed: %v", err)
		http.Redirect(w, r, "/sign-in", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleSignOut drops the cached pastes of the user and the auth cookies.
func (h *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if usr, err := token.GetUserInfo(r); err == nil {
		h.sessions.Forget(usr.ID)
	}
	if _, err := h.callAuth(w, r, "/auth/logout", nil); err != nil {
		h.log.Logf("WARN sign out: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleGetDashboard shows a page of the user pastes, filtered by the q
// query parameter.
func (h *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	query := r.URL.Query().Get("q")
	num, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		num = 1
	}
	if r.URL.Query().Get("refresh") == "1" {
		if err := sess.Reload(r.Context()); err != nil {
			h.showServiceError(w, r, err)
			return
		}
	}
	list, err := sess.Browse(r.Context(), query, h.options.PageSize, num)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}

	var notice string
	switch r.URL.Query().Get("notice") {
	case "deleted":
		notice = "Paste deleted."
	case "missing":
		notice = "That paste doesn't exist anymore."
	}
	h.show(w, r, http.StatusOK,
		page.Template("dashboard.html"),
		page.Title("Dashboard"),
		page.List(query, list),
		page.Notice(notice),
	)
}

func (h *Server) handleGetNewPaste(w http.ResponseWriter, r *http.Request) {
	kind, err := paste.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		kind = paste.KindCode
	}
	h.show(w, r, http.StatusOK,
		page.Template("editor.html"),
		page.Title("New paste"),
		page.Editor(paste.Draft{ContentType: string(kind), Tag: paste.Tags[0].Name}),
	)
}

// handlePostPaste creates new paste from the form data.
func (h *Server) handlePostPaste(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	sess, err := h.session(r)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	d := draftFromForm(r)
	p, err := sess.Create(r.Context(), d)
	if errors.Is(err, service.ErrValidation) {
		h.show(w, r, http.StatusBadRequest,
			page.Template("editor.html"),
			page.Title("New paste"),
			page.Editor(d),
			page.Message(errorMessage(err)),
		)
		return
	}
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, "/pastes/"+p.ID, http.StatusSeeOther)
}

// handleGetPaste shows a single paste.
func (h *Server) handleGetPaste(w http.ResponseWriter, r *http.Request) {
	usr, _ := token.GetUserInfo(r)
	p, err := h.service.Get(r.Context(), mux.Vars(r)["id"], usr.ID)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	h.show(w, r, http.StatusOK,
		page.Template("view.html"),
		page.Title(p.Title),
		page.Paste(p, h.render(p)),
	)
}

// render renders the paste content, falling back to plain text for rows
// that don't fit their content type.
func (h *Server) render(p store.Paste) template.HTML {
	body, err := paste.FromRow(p.ContentType, p.Content, p.Language)
	if err != nil {
		h.log.Logf("WARN paste %s: %v", p.ID, err)
		body = paste.Note{Source: p.Content}
	}
	html, err := paste.Render(body)
	if err != nil {
		h.log.Logf("WARN paste %s: %v", p.ID, err)
		html, _ = paste.Render(paste.Note{Source: p.Content})
	}
	return html
}

func (h *Server) handleGetEdit(w http.ResponseWriter, r *http.Request) {
	usr, _ := token.GetUserInfo(r)
	p, err := h.service.Get(r.Context(), mux.Vars(r)["id"], usr.ID)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	h.show(w, r, http.StatusOK,
		page.Template("editor.html"),
		page.Title("Edit "+p.Title),
		page.Paste(p, ""),
		page.Editor(paste.Draft{
			Title:       p.Title,
			Tag:         p.Tag,
			ContentType: p.ContentType,
			Content:     p.Content,
			Language:    p.Language,
		}),
	)
}

// handlePostUpdate saves the edit form.
func (h *Server) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	sess, err := h.session(r)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	d := draftFromForm(r)
	patch := service.PatchFromDraft(d)
	if d.Language == "" {
		// let the language be detected again
		patch.Language = nil
	}
	p, err := sess.Update(r.Context(), id, patch)
	if errors.Is(err, service.ErrValidation) {
		h.show(w, r, http.StatusBadRequest,
			page.Template("editor.html"),
			page.Title("Edit paste"),
			page.Paste(store.Paste{ID: id}, ""),
			page.Editor(d),
			page.Message(errorMessage(err)),
		)
		return
	}
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, "/pastes/"+p.ID, http.StatusSeeOther)
}

// handlePostDelete deletes a paste and goes back to the dashboard.
func (h *Server) handlePostDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	err = sess.Delete(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Redirect(w, r, "/dashboard?notice=missing", http.StatusSeeOther)
	case err != nil:
		h.showServiceError(w, r, err)
	default:
		http.Redirect(w, r, "/dashboard?notice=deleted", http.StatusSeeOther)
	}
}

// handlePostPreview renders the editor content as it would look when saved.
// It returns an HTML fragment.
func (h *Server) handlePostPreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.options.MaxBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "The form could not be read.", http.StatusBadRequest)
		return
	}
	d := draftFromForm(r)
	d.Title, d.Tag = "preview", "preview"
	entry, err := paste.Normalize(d)
	if err != nil {
		http.Error(w, errorMessage(err), statusFor(err))
		return
	}
	html, err := paste.Render(entry.Body)
	if err != nil {
		h.log.Logf("WARN preview: %v", err)
		http.Error(w, errorMessage(err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(html)); err != nil {
		h.log.Logf("ERROR failed to write: %v", err)
	}
}

func (h *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	usr, _ := token.GetUserInfo(r)
	profile, err := h.service.User(r.Context(), usr.ID)
	if errors.Is(err, service.ErrUserNotFound) {
		profile = store.User{ID: usr.ID, Name: usr.Name, Email: usr.Email}
		err = nil
	}
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	var notice string
	if r.URL.Query().Get("saved") == "1" {
		notice = "Profile updated."
	}
	h.show(w, r, http.StatusOK,
		page.Template("profile.html"),
		page.Title("Profile"),
		page.Profile(profile),
		page.Notice(notice),
	)
}

// handlePostProfile changes the display name of the user.
func (h *Server) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	usr, _ := token.GetUserInfo(r)
	name := r.PostFormValue("name")
	if _, err := h.service.User(r.Context(), usr.ID); errors.Is(err, service.ErrUserNotFound) {
		if _, err := h.service.SaveUser(r.Context(), store.User{ID: usr.ID, Name: usr.Name, Email: usr.Email}); err != nil {
			h.showServiceError(w, r, err)
			return
		}
	}
	profile, err := h.service.UpdateProfile(r.Context(), usr.ID, name)
	if errors.Is(err, service.ErrValidation) {
		h.show(w, r, http.StatusBadRequest,
			page.Template("profile.html"),
			page.Title("Profile"),
			page.Profile(store.User{ID: usr.ID, Name: name, Email: usr.Email}),
			page.Message(errorMessage(err)),
		)
		return
	}
	if err != nil {
		h.showServiceError(w, r, err)
		return
	}
	h.log.Logf("DEBUG profile of %s updated: %s", profile.ID, profile.Name)
	http.Redirect(w, r, "/profile?saved=1", http.StatusSeeOther)
}

// Show 404 Not Found error page
func (h *Server) notFound(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		h.writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Message: "no such endpoint"})
		return
	}
	h.showError(w, r, http.StatusNotFound, "Unfortunately the page you are looking for is not there 🙁")
}
