package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livechat/internal/config"
	"github.com/livechat/internal/handler"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/middleware"
	"github.com/livechat/internal/push"
	"github.com/livechat/internal/registry"
	"github.com/livechat/internal/repository"
	"github.com/livechat/internal/startup"
	"github.com/livechat/internal/storage"
	"github.com/livechat/internal/storage/memory"
	"github.com/livechat/migrations"
)

func main() {
	logger.SetPrefix("hub")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory presence (no external services)")
	flag.Parse()

	logger.Info("starting hub service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	agentRepo := repository.NewAgentRepository(pool)

	// Connections did not survive the restart, so neither did availability.
	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := agentRepo.SetAllOffline(resetCtx); err != nil {
		logger.Errorf("reset agent status: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	var presence storage.PresenceStore
	if *dev {
		presence = memory.New()
		logger.Info("presence: in-memory store")
	} else {
		presence = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		logger.Info("presence: redis connected")
	}
	defer presence.Close()

	vapidKeys, err := push.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v (web push disabled)", err)
		vapidKeys = nil
	}
	pusher := push.NewSender(vapidKeys, "mailto:support@livechat.local")

	roomRepo := repository.NewRoomRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	hub := registry.NewHub(roomRepo, msgRepo, agentRepo, presence, pusher)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	statusH := handler.NewAgentStatusHandler(presence, cfg.AgentTokens)
	pushH := handler.NewPushHandler(presence, vapidKeys)
	roomsH := handler.NewRoomsHandler(roomRepo)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Never compress the websocket upgrade: the wrapped ResponseWriter would
	// not implement http.Hijacker and the upgrade returns 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/ws", wsH.ServeWS)
	r.Post("/agent/status", statusH.UpdateStatus)
	r.Get("/agent/status", statusH.GetStatus)
	r.Get("/api/rooms", roomsH.List)
	r.Post("/api/push/subscribe", pushH.Subscribe)
	r.Delete("/api/push/subscribe", pushH.Unsubscribe)
	r.Get("/api/push/vapid-public-key", pushH.VAPIDPublicKey)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		logger.Errorf("list migrations: %v", err)
		os.Exit(1)
	}
	sort.Strings(entries)
	for _, name := range entries {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "livechat"
		password = "livechat_secret"
		database = "livechat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
