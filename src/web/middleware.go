package web

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pkgz/auth/token"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/iliafrenkel/snippetvault/src/metrics"
	"golang.org/x/time/rate"
)

// requireUser lets through only requests with a valid user. Pages redirect
// to the sign-in page, API calls get 401.
func (h *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usr, err := token.GetUserInfo(r)
		if err == nil && usr.ID != "" {
			next.ServeHTTP(w, r)
			return
		}
		if isAPI(r) {
			h.writeJSON(w, http.StatusUnauthorized, apiError{Code: "access", Message: "sign in required"})
			return
		}
		http.Redirect(w, r, "/sign-in?from="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	})
}

// statusWriter remembers the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request durations by route template.
func (h *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveRequest(route, sw.code, started)
	})
}

// limiter keeps a token bucket per user for paste mutations.
type limiter struct {
	rate    rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// newLimiter returns nil if perSecond is not positive.
func newLimiter(perSecond float64, burst, size int) (*limiter, error) {
	if perSecond <= 0 {
		return nil, nil
	}
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("newLimiter: %w", err)
	}
	return &limiter{rate: rate.Limit(perSecond), burst: burst, buckets: cache}, nil
}

func (l *limiter) allow(key string) bool {
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		if prev, found, _ := l.buckets.PeekOrAdd(key, b); found {
			b = prev
		}
	}
	return b.Allow()
}

// limit rejects mutations of users that go over the rate limit.
func (h *Server) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usr, _ := token.GetUserInfo(r)
		if h.limiter.allow(usr.ID) {
			next.ServeHTTP(w, r)
			return
		}
		h.log.Logf("WARN rate limit hit by %s", usr.ID)
		w.Header().Set("Retry-After", "1")
		if isAPI(r) {
			h.writeJSON(w, http.StatusTooManyRequests, apiError{Code: "rate_limit", Message: "too many requests"})
			return
		}
		h.showError(w, r, http.StatusTooManyRequests, "You are doing this too often, please slow down.")
	})
}
