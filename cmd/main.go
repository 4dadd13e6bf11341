package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-gateway/config"
	"otp-gateway/controller"
	"otp-gateway/handler"
	"otp-gateway/pkg/clock"
	"otp-gateway/pkg/logger"
	"otp-gateway/provider"
	"otp-gateway/repository"
	"otp-gateway/service"
	"otp-gateway/validator"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// @title OTP Gateway API
// @version 1.0
// @description Issues and verifies one-time passcodes delivered over WhatsApp or SMS
// @BasePath /
// @schemes http https
// @securityDefinitions.apiKey HMACSignature
// @in header
// @name X-Signature
// @description sha256=<hex HMAC-SHA256 of the raw request body>
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Mode)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Infow("Starting OTP Gateway",
		"version", cfg.Application.Version,
		"env", cfg.Application.Env,
		"port", cfg.HTTPServer.Port,
		"log_level", cfg.Logger.Level,
		"log_mode", cfg.Logger.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the key-value store
	store, closeStore, err := connectStore(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to connect to store", "driver", cfg.Store.Driver, "error", err)
	}
	defer closeStore()

	clk := clock.New()

	// Initialize validator
	v := validator.New()

	// Initialize repositories
	otpRepo := repository.NewOTPRepository(store, log)
	rateLimitRepo := repository.NewRateLimitRepository(store, log)

	// Initialize services
	otpService := service.NewOTPService(otpRepo, cfg.OTP, clk, log)
	jwtService := service.NewJWTService(cfg.VerificationToken, clk, log)
	limiters := handler.Limiters{
		IP: service.NewFixedWindowLimiter(rateLimitRepo, service.IPRateLimitPrefix,
			cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, clk),
		Phone: service.NewFixedWindowLimiter(rateLimitRepo, service.PhoneRateLimitPrefix,
			cfg.RateLimit.MaxRequestsPerPhone, cfg.RateLimit.PhoneWindow, clk),
	}

	// Initialize messaging provider
	messenger, err := provider.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize messaging provider", "provider", cfg.Messaging.Provider, "error", err)
	}

	// Initialize controllers
	otpController := controller.NewOTPController(otpService, jwtService, messenger, v, cfg.OTP.TTL, log)
	healthController := controller.NewHealthController(store, cfg.Application.Version, clk, log)

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	// Register routes
	handler.RegisterRoutes(e, otpController, healthController, limiters, cfg, log)

	// Start server in a goroutine
	serverAddr := fmt.Sprintf(":%d", cfg.HTTPServer.Port)
	go func() {
		log.Infow("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	log.Infow("Shutting down server gracefully...")

	// Create a deadline for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Application.GracefulShutdownTimeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Failed to shutdown server gracefully", "error", err)
		return
	}

	log.Infow("Server shutdown completed successfully")
}

// connectStore opens the configured KeyValueStore and returns its close function
func connectStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.KeyValueStore, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warnw("Using in-memory store, state is lost on restart and not shared between instances")
		return repository.NewMemoryStore(nil), func() {}, nil
	}

	opts, err := redisOptions(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	// Wait for Redis with a capped Fibonacci backoff
	b := retry.NewFibonacci(200 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxRetries(cfg.Redis.ConnectRetries, b)

	attempt := 0
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warnw("Redis not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", attempt, err)
	}

	log.Infow("Redis connected successfully", "addr", opts.Addr, "db", opts.DB)

	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Errorw("Failed to close redis client", "error", err)
		}
	}
	return repository.NewRedisStore(client, cfg.Redis.CommandTimeout), closeFn, nil
}

// redisOptions prefers REDIS_URL and falls back to the discrete host settings
func redisOptions(cfg config.Redis) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.CommandTimeout
	opts.WriteTimeout = cfg.CommandTimeout
	return opts, nil
}
