package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gtasite/api/collector"
	"gtasite/api/config"
	"gtasite/api/database"
	"gtasite/api/geo"
	"gtasite/api/handlers"
	"gtasite/api/logger"
	"gtasite/api/middleware"
	"gtasite/api/store"
)

func main() {
	// Missing .env is fine; containers inject env directly.
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("GIN_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.Parse()

	// --- Storage clients ---
	dbClient, err := database.NewPostgresDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to initialize PostgreSQL", "error", err)
	}
	defer dbClient.Close()

	chClient, err := database.NewClickHouseDB(database.ClickHouseConfig{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	})
	if err != nil {
		log.Fatal("failed to initialize ClickHouse", "error", err)
	}
	defer chClient.Close()

	redisClient, err := database.NewRedisDB(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to initialize Redis", "error", err)
	}
	defer redisClient.Close()

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	deviceStore := store.NewDeviceStore(dbClient.DB)
	registrationStore := store.NewRegistrationStore(dbClient.DB)
	eventStore := store.NewEventStore(chClient, log)
	statsStore := store.NewStatsStore(redisClient.RDB, log)
	identityStore := store.NewIdentityStore(redisClient.RDB, cfg.IdentityTTL, log)

	// --- Collector pipeline ---
	resolver := geo.NewResolver(cfg.GeoTimeout, log)
	sessions := collector.NewSessionManager(deviceStore, identityStore, resolver, log)
	aggregator := collector.NewAggregator(statsStore, log)
	fallback := collector.NewFallbackLog(cfg.FallbackLogPath, log)
	tracker := collector.NewTracker(sessions, eventStore, aggregator, fallback, log)
	guard := collector.NewGuard(sessions, identityStore, registrationStore, tracker, cfg.RateLimitWindow, log)

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore, log)
	trackHandlers := handlers.NewTrackHandlers(tracker)
	registrationHandlers := handlers.NewRegistrationHandlers(guard)
	adminHandlers := handlers.NewAdminHandlers(
		statsStore, eventStore, deviceStore, registrationStore,
		sessions, tracker, guard, fallback, log,
	)

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.FrontendOrigin))

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Public SPA surface. Every route resolves the device cookie first.
		public := api.Group("/")
		public.Use(middleware.DeviceIdentity(identityStore, cfg.IdentityTTL, log))
		{
			track := public.Group("/track")
			{
				track.POST("/init", trackHandlers.Init)
				track.POST("/page", trackHandlers.PageNavigation)
				track.POST("/click", trackHandlers.ButtonClick)
				track.POST("/form-start", trackHandlers.FormStart)
				track.POST("/form-submit", trackHandlers.FormSubmit)
				track.POST("/download", trackHandlers.Download)
				track.POST("/scroll", trackHandlers.ScrollMilestone)
				track.POST("/time", trackHandlers.TimeMilestone)
			}

			public.POST("/register", registrationHandlers.Register)
			public.GET("/permission", registrationHandlers.Permission)
			public.GET("/registration-info", registrationHandlers.RegistrationInfo)
		}

		// Admin stats/debug surface behind JWT.
		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(log))
		{
			admin.GET("/stats/daily", adminHandlers.DailyStats)
			admin.GET("/stats/hourly", adminHandlers.HourlyStats)
			admin.GET("/stats/event-counts", adminHandlers.EventCounts)
			admin.GET("/stats/top-paths", adminHandlers.TopPaths)

			admin.GET("/devices/:deviceId/journey", adminHandlers.DeviceJourney)
			admin.GET("/devices/:deviceId/session", adminHandlers.SessionDebug)
			admin.GET("/devices/:deviceId/spam-status", adminHandlers.SpamStatus)
			admin.POST("/devices/:deviceId/clear-rate-limit", adminHandlers.ClearRateLimit)
			admin.POST("/devices/:deviceId/clear-emails", adminHandlers.ClearSubmittedEmails)

			admin.GET("/fallback-events", adminHandlers.FallbackEntries)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("collector listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
}
