// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/iliafrenkel/snippetvault/src/service"
	"github.com/iliafrenkel/snippetvault/src/store"
	"github.com/iliafrenkel/snippetvault/src/web"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version information, comes from the build flags (-ldflags "-X main.version=...")
var (
	version = `¯\_(ツ)_/¯`
)

var opts struct {
	Timeouts struct {
		Shutdown  time.Duration `long:"shutdown" env:"SHUTDOWN" default:"10s" description:"server graceful shutdown timeout"`
		HTTPRead  time.Duration `long:"http-read" env:"HTTP_READ" default:"15s" description:"duration for reading the entire request"`
		HTTPWrite time.Duration `long:"http-write" env:"HTTP_WRITE" default:"15s" description:"duration before timing out writes of the response"`
		HTTPIdle  time.Duration `long:"http-idle" env:"HTTP_IDLE" default:"60s" description:"amount of time to wait for the next request"`
	} `group:"timeout" namespace:"timeout" env-namespace:"SV_TIMEOUT"`
	Web struct {
		Proto            string `long:"proto" env:"PROTO" default:"http" choice:"http" choice:"https" description:"protocol part of the Web server address (http/https)"`
		Host             string `long:"host" env:"HOST" default:"localhost" description:"hostname part of the Web server address"`
		Port             uint16 `long:"port" env:"PORT" default:"8080" description:"port part of the Web server address"`
		LogFile          string `long:"log-file" env:"LOG_FILE" default:"" description:"full path to the log file, default is stdout"`
		LogMode          string `long:"log-mode" env:"LOG_MODE" default:"production" choice:"debug" choice:"production" description:"log mode, can be 'debug' or 'production'"`
		BrandName        string `long:"brand-name" env:"BRAND_NAME" default:"SnippetVault" description:"brand name shown in the header of every page"`
		BrandTagline     string `long:"brand-tagline" env:"BRAND_TAGLINE" default:"Your personal stash of code, notes and links." description:"brand tagline shown below the brand name"`
		Assets           string `long:"assets" env:"ASSETS" default:"./assets" description:"path to the assets folder"`
		Templates        string `long:"templates" env:"TEMPLATES" default:"./templates" description:"path to the templates folder"`
		MaxBodySize      int64  `long:"max-body-size" env:"MAX_BODY_SIZE" default:"102400" description:"maximum size for request's body"`
		PageSize         int    `long:"page-size" env:"PAGE_SIZE" default:"10" description:"number of pastes on a dashboard page"`
		SessionCacheSize int    `long:"session-cache-size" env:"SESSION_CACHE_SIZE" default:"1000" description:"number of users whose pastes are kept in memory"`
	} `group:"web" namespace:"web" env-namespace:"SV_WEB"`
	Limit struct {
		Rate  float64 `long:"rate" env:"RATE" default:"5" description:"paste changes per second per user, 0 disables the limit"`
		Burst int     `long:"burst" env:"BURST" default:"20" description:"burst size of the rate limiter"`
	} `group:"limit" namespace:"limit" env-namespace:"SV_LIMIT"`
	DB struct {
		Type        string `long:"type" env:"TYPE" default:"memory" choice:"memory" choice:"disk" choice:"postgres" choice:"sqlite" choice:"redis" description:"database type to use for storage"`
		Connection  string `long:"connection" env:"CONNECTION" default:"" description:"database connection string or redis url, ignored for memory and disk"`
		AutoMigrate bool   `long:"auto-migrate" env:"AUTO_MIGRATE" description:"create or update postgres tables on start"`
		DataDir     string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"data folder for the disk storage, or the sqlite file"`
		CacheSize   uint64 `long:"cache-size" env:"CACHE_SIZE" default:"10485760" description:"memory cache size in bytes for the disk storage"`
		Prefix      string `long:"prefix" env:"PREFIX" default:"snippetvault" description:"key prefix for the redis storage"`
	} `group:"db" namespace:"db" env-namespace:"SV_DB"`
	Auth struct {
		Secret         string        `long:"secret" env:"SECRET" default:"" description:"secret used for JWT token generation/verification"`
		TokenDuration  time.Duration `long:"token-duration" env:"TOKEN_DURATION" default:"5m" description:"JWT token expiration"`
		CookieDuration time.Duration `long:"cookie-duration" env:"COOKIE_DURATION" default:"24h" description:"cookie expiration"`
		Issuer         string        `long:"issuer" env:"ISSUER" default:"snippetvault" description:"app name used to oauth requests"`
		URL            string        `long:"url" env:"URL" default:"http://localhost:8080" description:"callback url for oauth requests"`
		AvatarDir      string        `long:"avatar-dir" env:"AVATAR_DIR" default:"./data/avatars" description:"folder to keep user avatars in"`
		Dev            bool          `long:"dev" env:"DEV" description:"enable the dev oauth provider, never use in production"`
		GitHubCID      string        `long:"github-cid" env:"GITHUB_CID" default:"" description:"github client id used for oauth"`
		GitHubCSEC     string        `long:"github-csec" env:"GITHUB_CSEC" default:"" description:"github client secret used for oauth"`
		GoogleCID      string        `long:"google-cid" env:"GOOGLE_CID" default:"" description:"google client id used for oauth"`
		GoogleCSEC     string        `long:"google-csec" env:"GOOGLE_CSEC" default:"" description:"google client secret used for oauth"`
	} `group:"auth" namespace:"auth" env-namespace:"SV_AUTH"`
	Debug bool `long:"debug" env:"SV_DEBUG" description:"debug mode"`
}

func main() {
	// Say hello
	fmt.Printf("snippetvault %s\n", version)

	// Values from .env become defaults for the environment, real
	// environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("[WARN] can't load .env: %v\n", err)
	}

	// Parse the flags
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	p.NamespaceDelimiter = "-"
	p.EnvNamespaceDelimiter = "_"
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	log := setupLog(opts.Debug)

	if opts.Debug {
		log.Logf("INFO Options: %+v", opts)
	}
	if opts.Auth.Secret == "" {
		log.Logf("FATAL auth secret is empty, set --auth-secret or SV_AUTH_SECRET")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := openStore(ctx)
	cancel()
	if err != nil {
		log.Logf("FATAL can't open %s storage: %v", opts.DB.Type, err)
	}
	log.Logf("INFO using %s storage", opts.DB.Type)

	// Start the server
	webServer, err := web.New(log, service.New(db), web.ServerOptions{
		Addr:               opts.Web.Host + ":" + fmt.Sprintf("%d", opts.Web.Port),
		Proto:              opts.Web.Proto,
		ReadTimeout:        opts.Timeouts.HTTPRead,
		WriteTimeout:       opts.Timeouts.HTTPWrite,
		IdleTimeout:        opts.Timeouts.HTTPIdle,
		LogFile:            opts.Web.LogFile,
		LogMode:            opts.Web.LogMode,
		BrandName:          opts.Web.BrandName,
		BrandTagline:       opts.Web.BrandTagline,
		Assets:             opts.Web.Assets,
		Templates:          opts.Web.Templates,
		MaxBodySize:        opts.Web.MaxBodySize,
		PageSize:           opts.Web.PageSize,
		SessionCacheSize:   opts.Web.SessionCacheSize,
		RateLimit:          opts.Limit.Rate,
		RateBurst:          opts.Limit.Burst,
		Version:            version,
		AuthSecret:         opts.Auth.Secret,
		AuthTokenDuration:  opts.Auth.TokenDuration,
		AuthCookieDuration: opts.Auth.CookieDuration,
		AuthIssuer:         opts.Auth.Issuer,
		AuthURL:            opts.Auth.URL,
		AuthDev:            opts.Auth.Dev,
		AvatarDir:          opts.Auth.AvatarDir,
		GitHubCID:          opts.Auth.GitHubCID,
		GitHubCSEC:         opts.Auth.GitHubCSEC,
		GoogleCID:          opts.Auth.GoogleCID,
		GoogleCSEC:         opts.Auth.GoogleCSEC,
	})
	if err != nil {
		log.Logf("FATAL can't create web server: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	errc := make(chan error, 1)

	go func() {
		log.Logf("INFO Web server listening on %s:%d", opts.Web.Host, opts.Web.Port)
		errc <- webServer.ListenAndServe()
	}()

	// Wait indefinitely for either one of the OS signals (SIGTERM or SIGINT)
	// or for the server to return an error.
	select {
	case <-quit:
		log.Logf("INFO Shutting down ...")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Logf("ERROR Startup failed, exiting: %v", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), opts.Timeouts.Shutdown)
	defer cancel()

	if err := webServer.Shutdown(ctx); err != nil {
		log.Logf("INFO \tWeb server forced to shutdown: %v", err)
	} else {
		log.Logf("INFO \tWeb server is down")
	}
	if err := db.Close(); err != nil {
		log.Logf("WARN \tcan't close storage: %v", err)
	} else {
		log.Logf("INFO \tStorage is closed")
	}
	log.Logf("INFO Sayōnara!")
}

// openStore creates the storage chosen with the --db-type flag.
func openStore(ctx context.Context) (store.Interface, error) {
	switch opts.DB.Type {
	case "memory":
		return store.NewMemDB(), nil
	case "disk":
		return store.NewDiskStorage(store.DiskConfig{
			DataDir:   opts.DB.DataDir,
			CacheSize: opts.DB.CacheSize,
		})
	case "postgres":
		return store.NewPostgresDB(opts.DB.Connection, opts.DB.AutoMigrate)
	case "sqlite":
		path := opts.DB.Connection
		if path == "" {
			path = opts.DB.DataDir + "/snippetvault.db"
		}
		return store.NewSQLiteDB(ctx, path)
	case "redis":
		return store.NewRedisStore(ctx, opts.DB.Connection, opts.DB.Prefix)
	}
	return nil, fmt.Errorf("unknown storage type %q", opts.DB.Type)
}

func setupLog(dbg bool) *lgr.Logger {
	if dbg {
		return lgr.New(lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces)
	}
	return lgr.New()
}
