package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"noteszone/config"
	"noteszone/config/database"
	noterepo "noteszone/internal/note/repository"
	noteservice "noteszone/internal/note/service"
	userrepo "noteszone/internal/user/repository"
	userservice "noteszone/internal/user/service"
	"noteszone/middleware"
	"noteszone/pkg/logger"
	"noteszone/pkg/token"
	"noteszone/router"
	"noteszone/socket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	db, err := database.Connect(cfg.Database.DSN())
	if err != nil {
		logger.Log.Fatal("could not connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Log.Fatal("migration failed", zap.Error(err))
	}

	rooms, closeRooms := newRegistry(ctx, cfg.Redis)
	defer closeRooms()

	notes := noterepo.NewNoteRepository(db)
	auth := userservice.NewAuthService(
		userrepo.NewUserRepository(db),
		token.NewManager(cfg.JWT.Secret, cfg.JWT.Expiration),
	)
	hub := socket.NewHub(notes, rooms, socket.Options{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod(),
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		CheckOrigin:    middleware.AllowOrigin(cfg.CORS.AllowedOrigins),
	})

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: router.Setup(router.Deps{
			Auth:  auth,
			Notes: noteservice.NewNoteService(notes, auth, hub),
			Hub:   hub,
			CORS:  cfg.CORS,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("forced shutdown", zap.Error(err))
	}
}

// newRegistry returns a Redis-backed room registry when REDIS_URL is set.
func newRegistry(ctx context.Context, cfg config.RedisConfig) (socket.Registry, func()) {
	if cfg.URL == "" {
		return socket.NewLocalRegistry(), func() {}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Log.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Log.Fatal("could not connect to redis", zap.Error(err))
	}

	registry := socket.NewRedisRegistry(client, socket.DefaultChannelPrefix)
	if err := registry.Start(ctx); err != nil {
		logger.Log.Fatal("could not subscribe to rooms", zap.Error(err))
	}
	logger.Log.Info("using redis room registry")
	return registry, func() {
		registry.Close()
		client.Close()
	}
}
