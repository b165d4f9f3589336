package main

import (
	"context"   // Context for Redis operations and shutdown
	"net/http"  // HTTP server
	"os/signal" // Orderly shutdown on signals
	"syscall"   // SIGTERM
	"time"      // Shutdown grace period

	"ever_greater/internal/aggregator" // Periodic autoprinter aggregation
	"ever_greater/internal/api"        // Custom package for API handlers
	"ever_greater/internal/config"     // Custom package for configuration
	"ever_greater/internal/db"         // Schema setup and counter seeding
	"ever_greater/internal/ledger"     // The resource ledger
	"ever_greater/internal/middleware" // Custom package for middleware
	"ever_greater/internal/push"       // Connection registry and dispatcher

	"github.com/gin-contrib/cors"                             // CORS middleware for the browser client
	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics endpoint
	"github.com/redis/go-redis/v9"                            // Redis client
	"github.com/sirupsen/logrus"                              // Logrus for structured logging
	"gorm.io/driver/mysql"                                    // MySQL driver for GORM
	"gorm.io/gorm"                                            // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	// Apply schema and seed the global counter on first boot
	if err := db.Setup(gdb); err != nil {
		logrus.Fatalf("failed to set up schema: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// The ledger owns all user and counter mutation; the registry and
	// dispatcher own push delivery. All are lifecycle scoped, never globals.
	led := ledger.NewGormLedger(gdb)
	registry := push.NewRegistry()
	dispatcher := push.NewDispatcher(registry)

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Allow the browser client's origin with credentials (session cookie)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Public routes
	r.GET("/api/count", api.CountHandler(led, redisClient))             // Global count endpoint
	r.GET("/api/leaderboard", api.LeaderboardHandler(led, redisClient)) // Contribution leaderboard
	r.GET("/ws", api.WSHandler(registry, led, cfg.JWTSecret))           // Push channel
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))                    // Prometheus metrics

	// Auth routes
	r.POST("/api/auth/register", api.RegisterHandler(led, cfg.JWTSecret, cfg.IsProd)) // Registration endpoint
	r.POST("/api/auth/login", api.LoginHandler(led, cfg.JWTSecret, cfg.IsProd))       // Login endpoint
	r.POST("/api/auth/logout", api.LogoutHandler())                                   // Logout endpoint

	// Economy routes (protected by session)
	authGroup := r.Group("/api")
	// Protect economy-mutating routes with the session middleware
	authGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	authGroup.GET("/auth/me", api.MeHandler(led, redisClient))                                 // Current user endpoint
	authGroup.POST("/increment", api.IncrementHandler(led, dispatcher, redisClient))           // Print a ticket
	authGroup.POST("/shop/buy-supplies", api.BuySuppliesHandler(led, dispatcher, redisClient)) // Buy a supplies pack
	authGroup.POST("/shop/buy-gold", api.BuyGoldHandler(led, dispatcher, redisClient))         // Buy gold
	authGroup.POST("/shop/buy-autoprinter", api.BuyAutoprinterHandler(led, dispatcher, redisClient)) // Buy an autoprinter

	// The aggregator runs on its own schedule, independent of any request,
	// until shutdown cancels its context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	agg := aggregator.New(led, dispatcher, registry, redisClient, time.Duration(cfg.TickSeconds)*time.Second)
	go agg.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	// Block until a shutdown signal arrives, then drain within a bounded grace
	// period: stop the schedule, stop accepting requests, tear down channels,
	// and close the backends
	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("forced shutdown: %v", err)
	}
	registry.CloseAll()
	_ = redisClient.Close()
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
