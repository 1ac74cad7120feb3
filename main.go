package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LordMirex/mytypist-backend/cache"
	"github.com/LordMirex/mytypist-backend/config"
	"github.com/LordMirex/mytypist-backend/database"
	"github.com/LordMirex/mytypist-backend/handlers"
	"github.com/LordMirex/mytypist-backend/jobs"
	"github.com/LordMirex/mytypist-backend/metrics"
	"github.com/LordMirex/mytypist-backend/middleware"
	"github.com/LordMirex/mytypist-backend/security"
	"github.com/LordMirex/mytypist-backend/services"
	"github.com/LordMirex/mytypist-backend/store"
	"github.com/LordMirex/mytypist-backend/utils"
)

func main() {
	cfg, envLoaded := config.Load()

	logger, err := utils.NewLogger(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !envLoaded {
		logger.Info("no .env file found, using process environment")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET_KEY must be set")
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// --- PostgreSQL (visits, document visits, page visits, security) ---
	pg, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to initialize PostgreSQL", zap.Error(err))
	}
	defer pg.Close()
	if err := database.Migrate(ctx, pg.DB); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	// --- ClickHouse (interaction event log), optional ---
	var (
		eventLog *store.EventLogStore
		sink     services.EventSink
	)
	if cfg.ClickHouse.Enabled() {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to initialize ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to create ClickHouse schema", zap.Error(err))
		}
		eventLog = store.NewEventLogStore(ch.Conn, logger)
		sink = eventLog
	} else {
		logger.Warn("ClickHouse not configured, interaction event log disabled")
	}

	// --- Redis (rate limits, realtime counters, blocklist mirror) ---
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache", zap.Error(err))
	} else {
		defer redisClient.Close()
	}
	kv := cache.NewRedisStore(redisClient)

	metrics.Init()

	// --- Stores ---
	visitStore := store.NewVisitStore(pg.DB, logger)
	documentVisitStore := store.NewDocumentVisitStore(pg.DB, logger)
	pageVisitStore := store.NewPageVisitStore(pg.DB, logger)
	securityStore := store.NewSecurityStore(pg.DB, logger)

	// --- Services ---
	limiter := services.NewRateLimiter(kv, cfg.RateLimitEvents, cfg.RateLimitWindow)
	realtime := services.NewRealtimeService(visitStore, kv, cfg.RealtimeTTL, logger)
	tracker := services.NewTracker(visitStore, limiter, realtime, sink, logger)
	aggregation := services.NewAggregationService(documentVisitStore, logger)
	pageVisits := services.NewPageVisitService(pageVisitStore, logger)

	blocklist := security.NewBlocklist(securityStore, kv, security.DefaultLocalTTL, logger)
	if n, err := blocklist.Warm(ctx); err != nil {
		logger.Warn("failed to warm IP blocklist", zap.Error(err))
	} else {
		logger.Info("IP blocklist loaded", zap.Int("entries", n))
	}
	monitor := security.NewMonitor(securityStore, blocklist, logger)

	scheduler, err := jobs.NewScheduler(cfg.CleanupSchedule, logger,
		jobs.Task{Name: "page_visits", RetentionDays: cfg.PageVisitRetentionDays, Cleaner: pageVisits},
		jobs.Task{Name: "security_incidents", RetentionDays: cfg.IncidentRetentionDays, Cleaner: monitor},
	)
	if err != nil {
		logger.Fatal("failed to schedule cleanup", zap.Error(err))
	}
	scheduler.Start()

	// --- Handlers ---
	trackHandlers := handlers.NewTrackHandlers(tracker, logger)
	analyticsHandlers := handlers.NewAnalyticsHandlers(realtime, aggregation, logger)
	pageVisitHandlers := handlers.NewPageVisitHandlers(pageVisits, logger)
	securityHandlers := handlers.NewSecurityHandlers(monitor, logger)

	secret := []byte(cfg.JWTSecret)
	authRequired := middleware.AuthRequired(secret, cfg.AuthAPIKey, logger)

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))
	r.Use(middleware.SecurityMonitor(monitor, logger))

	r.GET("/health", handlers.Health(pg.DB))
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		public := api.Group("/", middleware.OptionalAuth(secret))
		{
			public.POST("/visits", trackHandlers.StartVisit)
			public.POST("/track", trackHandlers.TrackInteraction)
			public.POST("/page-visits", pageVisitHandlers.Track)
			public.POST("/documents/:document_id/visits", analyticsHandlers.TrackDocumentVisit)
		}

		protected := api.Group("/", authRequired)
		{
			protected.POST("/visits/:session_id/conversions", trackHandlers.MarkConversion)

			analytics := protected.Group("/analytics")
			{
				analytics.GET("/realtime", analyticsHandlers.RealtimeMetrics)
				analytics.GET("/dashboard", analyticsHandlers.Dashboard)
				analytics.GET("/visits", analyticsHandlers.Visits)
				analytics.GET("/export", analyticsHandlers.Export)
				analytics.POST("/anonymize", analyticsHandlers.Anonymize)
			}

			pages := protected.Group("/page-visits")
			{
				pages.GET("/analytics", pageVisitHandlers.Analytics)
				pages.GET("/session/:session_id", pageVisitHandlers.Session)
				pages.GET("/mine", pageVisitHandlers.Mine)
			}

			if eventLog != nil {
				statsHandlers := handlers.NewStatsHandlers(eventLog, logger)
				stats := protected.Group("/stats")
				{
					stats.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
					stats.GET("/top-pages", statsHandlers.GetTopPages)
					stats.GET("/avg-duration", statsHandlers.GetAverageDuration)
				}
			}

			sec := protected.Group("/security", middleware.AdminRequired())
			{
				sec.GET("/incidents", securityHandlers.ListIncidents)
				sec.PATCH("/incidents/:id/status", securityHandlers.UpdateIncidentStatus)
				sec.POST("/blocked-ips", securityHandlers.BlockIP)
				sec.DELETE("/blocked-ips/:ip", securityHandlers.UnblockIP)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("analytics API starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	tracker.Wait()
	scheduler.Stop(shutdownCtx)

	logger.Info("server exiting")
}
