package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/authcore/internal/auth"
	"github.com/example/authcore/internal/auth/github"
	cfg "github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/logger"
	"github.com/example/authcore/internal/migrations"
	"github.com/example/authcore/internal/user"
)

type App struct {
	Users  *user.Service
	Auth   *auth.Authenticator
	Tokens *auth.TokenService
	GitHub *github.Client
	Store  user.Store
	Log    *zap.Logger

	CORSAllowedOrigins []string
}

// newApp wires the auth core on top of an opened store.
func newApp(c *cfg.Config, store user.Store, log *zap.Logger) (*App, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(c.JwtSecret),
		Algorithm:  c.JwtAlgorithm,
		Location:   loc,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}
	users := user.NewService(store, tokens, auth.NewHasher(c.BcryptCost), log)
	gh := github.NewClient(github.Config{
		ClientID:     c.GitHubClientID,
		ClientSecret: c.GitHubClientSecret,
		AuthorizeURL: c.GitHubAuthorizeURL,
		TokenURL:     c.GitHubTokenURL,
		UserURL:      c.GitHubUserURL,
		HTTPClient:   &http.Client{Timeout: c.GitHubTimeout},
	})
	return &App{
		Users:              users,
		Auth:               auth.NewAuthenticator(users),
		Tokens:             tokens,
		GitHub:             gh,
		Store:              store,
		Log:                log,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
	}, nil
}

func openStore(c *cfg.Config, log *zap.Logger) (user.Store, error) {
	switch c.DBAdapter {
	case "sqlite":
		return user.NewSQLiteStore(c.SQLiteFile)
	case "postgres":
		log.Info("applying database migrations", zap.String("dir", c.MigrationsDir))
		if err := migrations.Apply(c.MigrationsDir, c.PostgresDSN, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return user.NewPostgresStore(c.PostgresDSN)
	case "memory":
		log.Warn("using in-memory store, users are lost on restart")
		return user.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}
}

// newRouter returns the routed API wrapped in CORS. CORS sits outside mux so
// preflight requests are answered before method matching rejects them.
func newRouter(app *App) http.Handler {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(app.Logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.Store.Ping(ctx); err != nil {
			app.Log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/auth/register", app.HandleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", app.HandleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/refresh", app.HandleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/auth/validate", app.HandleTokenValidate).Methods(http.MethodGet)
	v1.HandleFunc("/auth/github/authorize", app.HandleGitHubAuthorize).Methods(http.MethodGet)
	v1.HandleFunc("/auth/github", app.HandleGitHubCallback).Methods(http.MethodPost)

	users := v1.PathPrefix("/users").Subrouter()
	users.Use(app.RequireUser)
	users.HandleFunc("/me", app.HandleMe).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(app.RequireUser, app.RequireAdmin)
	admin.HandleFunc("/users", app.HandleListUsers).Methods(http.MethodGet)

	return app.CORS(r)
}

func main() {
	c, err := cfg.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(c.LogLevel, c.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := openStore(c, log)
	if err != nil {
		log.Fatal("store init failed", zap.String("adapter", c.DBAdapter), zap.Error(err))
	}
	log.Info("store ready", zap.String("adapter", c.DBAdapter))

	app, err := newApp(c, store, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}
	if err := app.Users.EnsureAdmin(context.Background(), c.AdminEmail, c.AdminPassword); err != nil {
		log.Fatal("bootstrap admin failed", zap.Error(err))
	}

	srv := &http.Server{Handler: newRouter(app), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		log.Info("starting server", zap.String("port", c.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		log.Warn("store close failed", zap.Error(err))
	}
	log.Info("server exited properly")
}
