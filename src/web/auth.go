package web

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/iliafrenkel/snippetvault/src/service"
)

// authRecorder collects the response of the auth library handlers.
type authRecorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (a *authRecorder) Header() http.Header         { return a.header }
func (a *authRecorder) Write(b []byte) (int, error) { return a.body.Write(b) }
func (a *authRecorder) WriteHeader(code int)        { a.code = code }

// callAuth runs a GET request against the auth library handlers and copies
// the cookies they set to w. The rest of the response is dropped, callers
// render their own pages.
func (h *Server) callAuth(w http.ResponseWriter, r *http.Request, path string, query url.Values) (int, error) {
	req := r.Clone(r.Context())
	req.Method = http.MethodGet
	req.URL = &url.URL{Path: path, RawQuery: query.Encode()}
	req.RequestURI = ""
	req.Body = http.NoBody
	req.ContentLength = 0
	req.Form, req.PostForm = nil, nil
	req.Header.Del("Content-Type")

	rec := &authRecorder{header: http.Header{}, code: http.StatusOK}
	h.authRoutes.ServeHTTP(rec, req)
	for _, c := range rec.header.Values("Set-Cookie") {
		w.Header().Add("Set-Cookie", c)
	}
	if rec.code >= http.StatusBadRequest {
		return rec.code, fmt.Errorf("auth %s: status %d: %s", path, rec.code, strings.TrimSpace(rec.body.String()))
	}
	return rec.code, nil
}

// localLogin checks the credentials and, if they are right, asks the local
// provider to issue the auth cookies.
func (h *Server) localLogin(w http.ResponseWriter, r *http.Request, email, password string) error {
	ok, err := h.service.CheckCredentials(email, password)
	if err != nil {
		return fmt.Errorf("localLogin: %w", err)
	}
	if !ok {
		return fmt.Errorf("localLogin: %w", service.ErrWrongCredentials)
	}
	_, err = h.callAuth(w, r, "/auth/"+service.LocalProvider+"/login", url.Values{
		"user":   {email},
		"passwd": {password},
	})
	if err != nil {
		return fmt.Errorf("localLogin: %w", err)
	}
	return nil
}
