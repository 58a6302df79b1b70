package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Pentico/subscription-service/internal/config"
	"github.com/Pentico/subscription-service/internal/handler"
	appMiddleware "github.com/Pentico/subscription-service/internal/middleware"
	"github.com/Pentico/subscription-service/internal/repository"
	"github.com/Pentico/subscription-service/internal/service"
	"github.com/Pentico/subscription-service/pkg/cache"
	"github.com/Pentico/subscription-service/pkg/payment"
)

func main() {
	// Load .env file if present (for local development)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config error")
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("database error")
	}
	defer db.Close()

	if err := repository.RunMigrations(ctx, db); err != nil {
		logrus.WithError(err).Fatal("migration error")
	}
	logrus.Info("database connected & migrated")

	// Cache invalidation (best effort; noop when no Redis is configured)
	var cacheProvider cache.Provider = cache.NewNoopProvider()
	if cfg.RedisURL != "" {
		redisProvider, err := cache.NewRedisProvider(cfg.RedisURL)
		if err != nil {
			logrus.WithError(err).Fatal("redis error")
		}
		defer redisProvider.Close()
		cacheProvider = redisProvider
		logrus.Info("redis cache connected")
	}

	// Payment provider, selected once at startup. Nothing downstream ever
	// branches on the provider flavor again.
	var paymentProvider payment.Provider = payment.NewNoopProvider()
	if cfg.PaymentProvider == "stripe" {
		paymentProvider = payment.NewStripeProvider(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.PaymentWebhookSecret)
		logrus.Info("stripe payment provider configured")
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	planRepo := repository.NewPlanRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Services
	subscriptionSvc := service.NewSubscriptionService(
		accountRepo, planRepo, userRepo, paymentProvider, cacheProvider, cfg.RenewWebhookURL,
	)

	// Handlers
	healthHandler := handler.NewHealthHandler(db)
	planHandler := handler.NewPlanHandler(planRepo, cfg.VATPercent)
	userHandler := handler.NewUserHandler(userRepo, accountRepo)
	accountHandler := handler.NewAccountHandler(accountRepo)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc, paymentProvider)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// JWT gate with its public-route allow-list
	if cfg.DisableJWT {
		logrus.Warn("JWT authentication is disabled")
	} else {
		r.Use(appMiddleware.Auth(cfg.JWTSecret))
	}

	r.Get("/health", healthHandler.Check)

	// CRUD resources
	r.Route("/api/plans", planHandler.Mount)
	r.Route("/api/users", userHandler.Mount)
	r.Route("/api/accounts", accountHandler.Mount)

	// Subscription lifecycle: account route family
	r.Get("/api/accounts/{accountReference}/subscriptions", subscriptionHandler.List)
	r.Post("/api/accounts/{accountReference}/subscriptions", subscriptionHandler.Create)
	r.Delete("/api/accounts/{accountReference}/subscriptions", subscriptionHandler.Delete)
	r.Get("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", subscriptionHandler.Read)
	r.Put("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", subscriptionHandler.Update)
	r.Delete("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", subscriptionHandler.Delete)

	// Subscription lifecycle: user route family
	r.Get("/api/users/{userReference}/subscriptions", subscriptionHandler.List)
	r.Post("/api/users/{userReference}/subscriptions", subscriptionHandler.Create)
	r.Delete("/api/users/{userReference}/subscriptions", subscriptionHandler.Delete)
	r.Get("/api/users/{userReference}/subscriptions/{subscriptionId}", subscriptionHandler.Read)
	r.Put("/api/users/{userReference}/subscriptions/{subscriptionId}", subscriptionHandler.Update)
	r.Delete("/api/users/{userReference}/subscriptions/{subscriptionId}", subscriptionHandler.Delete)

	// Inbound provider webhook (exempt from authentication)
	r.Post("/api/subscriptions/renew", subscriptionHandler.Renew)

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logrus.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logrus.WithField("addr", addr).Info("subscription service listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("server error")
	}
}
