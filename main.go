package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"eventflex_back_end_go/auth"
	"eventflex_back_end_go/config"
	"eventflex_back_end_go/db"
	"eventflex_back_end_go/logger"
	"eventflex_back_end_go/presence"
	"eventflex_back_end_go/relay"
	"eventflex_back_end_go/routes"
	"eventflex_back_end_go/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type store interface {
	services.ConversationRepository
	services.MessageRepository
	services.ParticipantDirectory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zlog, err := logger.New(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zlog *zap.Logger) error {
	// Initialize store
	var st store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		zlog.Warn("using the in-memory store, data is lost on restart")
		st = db.NewMemoryStore()
	default:
		pool, err := db.InitDatabase(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to the database: %w", err)
		}
		defer pool.Close()
		st = db.NewPostgresStore(pool)
	}

	conversations := services.NewConversationService(st, st, st, zlog)
	messages := services.NewMessageService(st, st, st, cfg.MaxMessageLength, zlog)
	hub := relay.NewHub(conversations, zlog)
	chat := services.NewChatService(conversations, messages, hub, zlog)

	var tracker presence.Tracker = presence.NewLocalTracker(hub)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		tracker = presence.NewRedisTracker(rdb, cfg.PresenceTTL, zlog)
	}

	gate := auth.NewGate(auth.NewVerifier(cfg.JWTSecret, 0), st, zlog)
	ws := services.NewWebsocketHandler(hub, chat, gate, tracker, services.WebsocketConfig{
		AllowedOrigins: cfg.Origins(),
		SendBuffer:     cfg.WSSendBuffer,
		PingInterval:   cfg.WSPingInterval,
		MaxFrameBytes:  cfg.WSMaxFrameBytes,
		RateLimit:      cfg.WSRateLimit,
	}, zlog)

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(routes.Recovery(zlog), routes.RequestLogger(zlog.Named("http")), routes.BodyLimit(int64(cfg.HTTPMaxBodyBytes)))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Initialize routes
	routes.SetupChatRoutes(r, gate, conversations, chat)
	routes.SetupPresenceRoutes(r, gate, tracker)
	routes.SetupWebsocketRoutes(r, ws)
	routes.SetupSystemRoutes(r, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		zlog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
