package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/albumauth/internal/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// App wires the auth core to its collaborators. The signing secret is
// loaded once at startup and never mutated or logged.
type App struct {
	DB          DB
	secret      []byte
	logger      *zap.Logger
	mailer      Mailer
	linkLimiter *emailLimiter
	frontendURL string
	siteName    string
}

func newLogger(level string) (*zap.Logger, error) {
	c := zap.NewProductionConfig()
	if err := c.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return c.Build()
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Authentication endpoints
	v1.HandleFunc("/auth/login-link", a.HandleLoginLink).Methods("POST")
	v1.HandleFunc("/auth/verify", a.HandleVerify).Methods("POST")
	v1.HandleFunc("/auth/refresh", a.HandleRefresh).Methods("POST")
	v1.HandleFunc("/auth/switch-group", a.HandleSwitchGroup).Methods("POST")
	v1.HandleFunc("/auth/logout", a.HandleLogout).Methods("POST")
	v1.Handle("/auth/invite", a.RequireAdmin(http.HandlerFunc(a.HandleInvite))).Methods("POST")
	v1.Handle("/auth/me", a.RequireAuth(http.HandlerFunc(a.HandleMe))).Methods("GET")

	// Group and membership management
	v1.Handle("/groups", a.RequireAuth(http.HandlerFunc(a.HandleCreateGroup))).Methods("POST")
	v1.Handle("/groups/{groupID}", a.RequireOwner(http.HandlerFunc(a.HandleDeleteGroup))).Methods("DELETE")
	v1.Handle("/groups/{groupID}/members", a.RequireAuth(http.HandlerFunc(a.HandleListMembers))).Methods("GET")
	v1.Handle("/groups/{groupID}/members/{userID}/role", a.RequireAdmin(http.HandlerFunc(a.HandleUpdateMemberRole))).Methods("PUT")
	v1.Handle("/groups/{groupID}/members/{userID}", a.RequireAdmin(http.HandlerFunc(a.HandleRemoveMember))).Methods("DELETE")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	logger, err := newLogger(c.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			logger.Fatal("sqlite init", zap.Error(err))
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			logger.Fatal("postgres config", zap.Error(err))
		}
		logger.Info("applying database migrations")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			logger.Warn("migrations", zap.Error(err))
		}
		p, err := NewPostgresDB(dsn)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		db = p
		logger.Info("connected to PostgreSQL")
	case "memory":
		logger.Warn("using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		logger.Fatal("unsupported DB_ADAPTER", zap.String("adapter", c.DBAdapter))
	}

	app := &App{
		DB:          db,
		secret:      []byte(c.SessionSecret),
		logger:      logger,
		mailer:      &logMailer{logger: logger},
		linkLimiter: newEmailLimiter(c.LinksPerMinute),
		frontendURL: c.FrontendURL,
		siteName:    c.SiteName,
	}

	srv := &http.Server{
		Handler:      app.routes(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", c.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown failed", zap.Error(err))
	}
	logger.Info("server exited")
}
