package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EbbFM/cache"
	"EbbFM/config"
	"EbbFM/core/forum"
	"EbbFM/core/live"
	"EbbFM/core/moderation"
	"EbbFM/core/snapshot"
	"EbbFM/db"
	"EbbFM/logger"
	"EbbFM/metrics"
	"EbbFM/repository"
	"EbbFM/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	server := &http.Server{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	// MinIO 不可用时播放地址降级为空，服务照常启动
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO unavailable, stream URLs degraded", logger.ErrorField(err))
	}

	metrics.MustRegister()

	roomRepo := repository.NewGormRoomRepository(db.GormDB)
	forumRepo := repository.NewGormForumRepository(db.GormDB)

	bus := live.NewBus()
	defer bus.Close()

	builder := snapshot.NewBuilder(roomRepo, cfg.DecayWindow)
	liveManager := live.NewManager(roomRepo, builder, bus, cfg.DecayTick)

	contentGate := moderation.NewContentGate(cfg.BannedWordsFile)
	defer contentGate.Close()
	rateGate := moderation.NewRateGate(cache.NewRateCache(), cfg.ReplyRateInterval)
	forumManager := forum.NewManager(forumRepo, roomRepo, contentGate, rateGate, bus)

	roomHandler := NewRoomHandler(liveManager)
	forumHandler := NewForumHandler(forumManager)

	auth := func(next http.HandlerFunc) http.HandlerFunc { return AuthMiddleware(cfg, next) }
	admin := func(next http.HandlerFunc) http.HandlerFunc { return AdminMiddleware(cfg, next) }

	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	RegisterRoomRoutes(router, roomHandler, auth, admin)
	RegisterForumRoutes(router, forumHandler, auth, admin)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting on :8080",
			logger.Duration("decayWindow", cfg.DecayWindow),
			logger.Duration("decayTick", cfg.DecayTick),
			logger.Duration("replyRateInterval", cfg.ReplyRateInterval))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}
