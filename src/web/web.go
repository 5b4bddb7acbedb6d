// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

// Package web implements a web server that provides a front-end and a JSON
// API for the snippetvault application.
package web

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-pkgz/auth"
	"github.com/go-pkgz/auth/avatar"
	"github.com/go-pkgz/auth/provider"
	"github.com/go-pkgz/auth/token"
	"github.com/go-pkgz/lgr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/iliafrenkel/snippetvault/src/paste"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
	"github.com/iliafrenkel/snippetvault/src/view"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOptions defines various parameters needed to run the Server
type ServerOptions struct {
	Addr               string        // address to listen on, see http.Server docs for details
	Proto              string        // protocol, either "http" or "https"
	ReadTimeout        time.Duration // maximum duration for reading the entire request.
	WriteTimeout       time.Duration // maximum duration before timing out writes of the response
	IdleTimeout        time.Duration // maximum amount of time to wait for the next request
	LogFile            string        // if not empty, will write logs to the file
	LogMode            string        // can be either "debug" or "production"
	BrandName          string        // displayed at the top of each page, default is "SnippetVault"
	BrandTagline       string        // displayed below the BrandName
	Assets             string        // location of the assets folder (css, js, images)
	Templates          string        // location of the templates folder
	MaxBodySize        int64         // maximum size for request's body
	PageSize           int           // number of pastes on a dashboard page
	SessionCacheSize   int           // number of users whose pastes are kept in memory
	RateLimit          float64       // paste mutations per second per user, 0 means no limit
	RateBurst          int           // burst size for the rate limiter
	Version            string        // app version, comes from build
	AuthSecret         string        // secret for JWT token generation and validation
	AuthTokenDuration  time.Duration // JWT token expiration duration
	AuthCookieDuration time.Duration // cookie expiration time
	AuthIssuer         string        // application name used as an issuer in oauth requests
	AuthURL            string        // callback URL for oauth requests
	AuthDev            bool          // enables the dev oauth provider on :8084
	AvatarDir          string        // where the auth library keeps avatars
	GitHubCID          string        // github client id for oauth
	GitHubCSEC         string        // github client secret for oauth
	GoogleCID          string        // google client id for oauth
	GoogleCSEC         string        // google client secret for oauth
}

// Server encapsulates a router and a server.
// Normally, you'd create a new instance by calling New which configures the
// rotuer and then call ListenAndServe to start serving incoming requests.
type Server struct {
	router     *mux.Router
	server     *http.Server
	options    ServerOptions
	templates  *template.Template
	log        lgr.L
	service    *service.Service
	sessions   *view.Registry
	auth       *auth.Service
	authRoutes http.Handler
	providers  []string
	limiter    *limiter
}

var dbgLogFormatter handlers.LogFormatter = func(writer io.Writer, params handlers.LogFormatterParams) {
	const (
		green   = "\033[97;42m"
		white   = "\033[90;47m"
		yellow  = "\033[90;43m"
		red     = "\033[97;41m"
		blue    = "\033[97;44m"
		magenta = "\033[97;45m"
		cyan    = "\033[97;46m"
		reset   = "\033[0m"
	)

	code := params.StatusCode
	cclr := ""
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		cclr = green
	case code >= http.StatusMultipleChoices && code < http.StatusBadRequest:
		cclr = white
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		cclr = yellow
	default:
		cclr = red
	}

	method := params.Request.Method
	mclr := ""
	switch method {
	case http.MethodGet:
		mclr = blue
	case http.MethodPost:
		mclr = cyan
	case http.MethodPut:
		mclr = yellow
	case http.MethodDelete:
		mclr = red
	case http.MethodPatch:
		mclr = green
	case http.MethodHead:
		mclr = magenta
	default:
		mclr = reset
	}

	host, _, err := net.SplitHostPort(params.Request.RemoteAddr)
	if err != nil {
		host = params.Request.RemoteAddr
	}

	fmt.Fprintf(writer, "|%s %3d %s| %15s |%s %-7s %s| %8d | %s \n",
		cclr, code, reset,
		host,
		mclr, method, reset,
		params.Size,
		params.URL.RequestURI(),
	)
}

// ListenAndServe starts an HTTP server and binds it to the provided address.
// You have to call New() first to initialise the Server.
func (h *Server) ListenAndServe() error {
	var hdlr http.Handler
	var w io.Writer
	var err error
	if h.options.LogFile == "" {
		w = lgr.ToWriter(h.log, "")
	} else {
		w, err = os.OpenFile(h.options.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("Server.ListenAndServe: cannot open log file: [%s]: %w", h.options.LogFile, err)
		}
	}
	if h.options.LogMode == "debug" {
		hdlr = handlers.CustomLoggingHandler(w, h.router, dbgLogFormatter)
	} else {
		hdlr = handlers.CombinedLoggingHandler(w, h.router)
	}
	h.server = &http.Server{
		Addr:         h.options.Addr,
		WriteTimeout: h.options.WriteTimeout,
		ReadTimeout:  h.options.ReadTimeout,
		IdleTimeout:  h.options.IdleTimeout,
		Handler:      handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{h.log}))(hdlr),
	}

	return h.server.ListenAndServe()
}

// Shutdown gracefully shutdown the server with the given context.
func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Handler returns the router, mostly for tests.
func (h *Server) Handler() http.Handler {
	return h.router
}

// recoveryLogger sends panics recovered by gorilla/handlers to lgr.
type recoveryLogger struct {
	log lgr.L
}

func (r recoveryLogger) Println(args ...interface{}) {
	r.log.Logf("ERROR panic: %s", fmt.Sprint(args...))
}

// New returns an instance of the Server with initialised middleware,
// loaded templates and routes. You can call ListenAndServe on a newly
// created instance to initialise the HTTP server and start handling incoming
// requests.
func New(l lgr.L, svc *service.Service, opts ServerOptions) (*Server, error) {
	var handler Server
	handler.log = l
	handler.options = opts
	handler.service = svc
	if handler.options.PageSize <= 0 {
		handler.options.PageSize = view.DefaultPageSize
	}
	if handler.options.SessionCacheSize <= 0 {
		handler.options.SessionCacheSize = 1000
	}
	if handler.options.MaxBodySize <= 0 {
		handler.options.MaxBodySize = 100 << 10
	}
	if handler.options.AvatarDir == "" {
		handler.options.AvatarDir = ".tmp"
	}

	// Load templates
	tpl, err := template.New("").Funcs(templateFuncs).ParseGlob(handler.options.Templates + "/*.html")
	if err != nil {
		return nil, fmt.Errorf("web.New: loading templates: %w", err)
	}
	handler.log.Logf("INFO loaded %d templates", len(tpl.Templates()))
	handler.templates = tpl

	handler.sessions, err = view.NewRegistry(svc, handler.options.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("web.New: %w", err)
	}
	handler.limiter, err = newLimiter(opts.RateLimit, opts.RateBurst, handler.options.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("web.New: %w", err)
	}

	// Initialise the router
	handler.router = mux.NewRouter()

	// Static files
	if handler.options.Assets != "" {
		handler.router.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", http.FileServer(http.Dir(handler.options.Assets))))
	}

	// Auth middleware
	handler.auth = auth.NewService(auth.Opts{
		SecretReader: token.SecretFunc(func(id string) (string, error) { // secret key for JWT
			return handler.options.AuthSecret, nil
		}),
		TokenDuration:  handler.options.AuthTokenDuration,
		CookieDuration: handler.options.AuthCookieDuration,
		Issuer:         handler.options.AuthIssuer,
		URL:            handler.options.AuthURL,
		DisableXSRF:    true,
		SameSiteCookie: http.SameSiteLaxMode,
		AvatarStore:    avatar.NewLocalFS(handler.options.AvatarDir),
		ClaimsUpd:      token.ClaimsUpdFunc(handler.updateClaims),
		Logger:         handler.log, // optional logger for auth library
	})
	handler.auth.AddDirectProvider(service.LocalProvider, provider.CredCheckerFunc(svc.CheckCredentials))
	if opts.GitHubCID != "" {
		handler.auth.AddProvider("github", opts.GitHubCID, opts.GitHubCSEC)
		handler.providers = append(handler.providers, "github")
	}
	if opts.GoogleCID != "" {
		handler.auth.AddProvider("google", opts.GoogleCID, opts.GoogleCSEC)
		handler.providers = append(handler.providers, "google")
	}
	if opts.AuthDev {
		handler.auth.AddProvider("dev", "", "") // dev auth, runs dev oauth2 server on :8084
		handler.providers = append(handler.providers, "dev")
		go func() {
			devAuthServer, err := handler.auth.DevAuth()
			if err != nil {
				handler.log.Logf("ERROR dev auth: %v", err)
				return
			}
			devAuthServer.Run(context.Background())
		}()
	}

	m := handler.auth.Middleware()
	handler.router.Use(m.Trace)
	authRoutes, avaRoutes := handler.auth.Handlers()
	handler.authRoutes = authRoutes
	handler.router.PathPrefix("/auth").Handler(authRoutes)
	handler.router.PathPrefix("/avatar").Handler(avaRoutes)
	handler.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Pages
	web := handler.router.NewRoute().Subrouter()
	web.Use(handler.instrument)
	web.HandleFunc("/", handler.handleGetHomePage).Methods("GET")
	web.HandleFunc("/sign-in", handler.handleGetSignIn).Methods("GET")
	web.HandleFunc("/sign-in", handler.handlePostSignIn).Methods("POST")
	web.HandleFunc("/sign-up", handler.handleGetSignUp).Methods("GET")
	web.HandleFunc("/sign-up", handler.handlePostSignUp).Methods("POST")
	web.HandleFunc("/sign-out", handler.handleSignOut).Methods("GET", "POST")

	private := handler.router.NewRoute().Subrouter()
	private.Use(handler.instrument, handler.requireUser)
	private.HandleFunc("/dashboard", handler.handleGetDashboard).Methods("GET")
	private.HandleFunc("/pastes/new", handler.handleGetNewPaste).Methods("GET")
	private.Handle("/pastes", handler.limit(http.HandlerFunc(handler.handlePostPaste))).Methods("POST")
	private.HandleFunc("/pastes/{id}", handler.handleGetPaste).Methods("GET")
	private.Handle("/pastes/{id}", handler.limit(http.HandlerFunc(handler.handlePostUpdate))).Methods("POST")
	private.HandleFunc("/pastes/{id}/edit", handler.handleGetEdit).Methods("GET")
	private.Handle("/pastes/{id}/delete", handler.limit(http.HandlerFunc(handler.handlePostDelete))).Methods("POST")
	private.HandleFunc("/preview", handler.handlePostPreview).Methods("POST")
	private.HandleFunc("/profile", handler.handleGetProfile).Methods("GET")
	private.HandleFunc("/profile", handler.handlePostProfile).Methods("POST")

	// JSON API
	api := handler.router.PathPrefix("/api").Subrouter()
	api.Use(handler.instrument, handler.requireUser)
	api.HandleFunc("/me", handler.apiGetMe).Methods("GET")
	api.HandleFunc("/pastes", handler.apiListPastes).Methods("GET")
	api.Handle("/pastes", handler.limit(http.HandlerFunc(handler.apiCreatePaste))).Methods("POST")
	api.HandleFunc("/pastes/{id}", handler.apiGetPaste).Methods("GET")
	api.Handle("/pastes/{id}", handler.limit(http.HandlerFunc(handler.apiUpdatePaste))).Methods("PATCH")
	api.Handle("/pastes/{id}", handler.limit(http.HandlerFunc(handler.apiDeletePaste))).Methods("DELETE")

	// Common error routes
	handler.router.NotFoundHandler = handler.router.NewRoute().BuildOnly().HandlerFunc(handler.notFound).GetHandler()

	return &handler, nil
}

// updateClaims keeps the users table in sync with the auth tokens and puts
// the display name chosen on the profile page into the token.
func (h *Server) updateClaims(claims token.Claims) token.Claims {
	if claims.User == nil {
		return claims
	}
	usr, err := h.service.SaveUser(context.Background(), store.User{
		ID:      claims.User.ID,
		Name:    claims.User.Name,
		Email:   claims.User.Email,
		Picture: claims.User.Picture,
		IP:      claims.User.IP,
		Admin:   claims.User.IsAdmin(),
	})
	if err != nil {
		h.log.Logf("WARN can't save user %s: %v", claims.User.ID, err)
		return claims
	}
	claims.User.Name = usr.Name
	if strings.HasPrefix(usr.ID, service.LocalProvider+"_") {
		claims.User.Email = usr.Email
	}
	return claims
}

var templateFuncs = template.FuncMap{
	"tagColor": paste.TagColor,
	"kindLabel": func(s string) string {
		k, err := paste.ParseKind(s)
		if err != nil {
			return s
		}
		return k.Label()
	},
	"placeholder": func(s string) string {
		k, err := paste.ParseKind(s)
		if err != nil {
			return paste.KindNote.Placeholder()
		}
		return k.Placeholder()
	},
	"date": func(t time.Time) string {
		return t.Local().Format("Jan 2, 2006 15:04")
	},
	"excerpt": func(s string) string {
		const max = 160
		r := []rune(s)
		if len(r) <= max {
			return s
		}
		return string(r[:max]) + "…"
	},
}
