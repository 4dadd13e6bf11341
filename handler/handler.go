package handler

import (
	"otp-gateway/config"
	"otp-gateway/controller"
	"otp-gateway/pkg/logger"
	"otp-gateway/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Limiters groups the two admission gates in front of the OTP endpoints
type Limiters struct {
	IP    service.RateLimiter
	Phone service.RateLimiter
}

// RegisterRoutes registers all HTTP routes and middleware
func RegisterRoutes(
	e *echo.Echo,
	otpController *controller.OTPController,
	healthController *controller.HealthController,
	limiters Limiters,
	cfg *config.Config,
	log *logger.Logger,
) {
	e.HTTPErrorHandler = ErrorHandler(log)

	// Add common middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(RequestLoggerMiddleware(log))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            15552000,
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data: https:",
	}))
	e.Use(middleware.Gzip())
	if len(cfg.HTTPServer.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTPServer.AllowedOrigins,
			AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
			AllowHeaders:     []string{echo.HeaderContentType, SignatureHeader, controller.IdempotencyKeyHeader},
			AllowCredentials: true,
		}))
	}
	e.Use(middleware.BodyLimit(cfg.HTTPServer.BodyLimit))

	// System endpoints
	e.GET("/health", healthController.HealthCheck)
	e.GET("/ready", healthController.Ready)

	// OTP routes: both limiters run before signature verification
	otpMiddleware := []echo.MiddlewareFunc{
		CaptureRawBodyMiddleware(),
		IPRateLimitMiddleware(limiters.IP, log),
		PhoneRateLimitMiddleware(limiters.Phone, log),
	}
	if cfg.Auth.HMACEnabled {
		otpMiddleware = append(otpMiddleware, HMACAuthMiddleware(cfg.Auth.HMACSecret, log))
	} else {
		log.Warnw("HMAC authentication disabled", "env", cfg.Application.Env)
	}

	otpGroup := e.Group("/otp", otpMiddleware...)
	otpGroup.POST("/request", otpController.RequestOTP)
	otpGroup.POST("/verify", otpController.VerifyOTP)
}
