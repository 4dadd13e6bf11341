package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"otp-gateway/entity"
	"otp-gateway/pkg/crypto"
	"otp-gateway/pkg/logger"
	"otp-gateway/service"

	"github.com/labstack/echo/v4"
)

const (
	// SignatureHeader carries sha256=<hex> over the raw request body
	SignatureHeader = "X-Signature"

	rawBodyContextKey = "raw_body"
)

// Rate limit response headers
const (
	HeaderRateLimitLimit      = "RateLimit-Limit"
	HeaderRateLimitRemaining  = "RateLimit-Remaining"
	HeaderRateLimitReset      = "RateLimit-Reset"
	HeaderPhoneLimitLimit     = "X-RateLimit-Limit-Phone"
	HeaderPhoneLimitRemaining = "X-RateLimit-Remaining-Phone"
	HeaderPhoneLimitReset     = "X-RateLimit-Reset-Phone"
)

// RawBody returns the request body captured by CaptureRawBodyMiddleware
func RawBody(c echo.Context) []byte {
	body, _ := c.Get(rawBodyContextKey).([]byte)
	return body
}

// CaptureRawBodyMiddleware reads the body once so the phone limiter and the
// signature check see the exact bytes, then restores it for binding.
func CaptureRawBodyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				c.Set(rawBodyContextKey, []byte{})
				return next(c)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return err
			}
			_ = req.Body.Close()

			req.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(rawBodyContextKey, body)
			return next(c)
		}
	}
}

// IPRateLimitMiddleware admits a fixed number of requests per client IP and window
func IPRateLimitMiddleware(limiter service.RateLimiter, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			decision, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				// Fail open: an unreachable store must not take the endpoint down
				log.Errorw("IP rate limiting error", "ip", ip, "error", err)
				return next(c)
			}

			now := time.Now()
			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			h.Set(HeaderRateLimitReset, strconv.Itoa(decision.RetryAfterSeconds(now)))

			if !decision.Allowed {
				log.Warnw("IP rate limit exceeded",
					"ip", ip,
					"user_agent", c.Request().UserAgent(),
					"path", c.Request().URL.Path)

				h.Set(echo.HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds(now)))
				return c.JSON(http.StatusTooManyRequests, entity.ErrorResponse{
					Error: "Too many requests from this IP. Please try again later.",
				})
			}

			return next(c)
		}
	}
}

// PhoneRateLimitMiddleware admits a fixed number of requests per phone number
// and window. Requests without a phoneNumber in the body pass through.
func PhoneRateLimitMiddleware(limiter service.RateLimiter, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var body struct {
				PhoneNumber string `json:"phoneNumber"`
			}
			if err := json.Unmarshal(RawBody(c), &body); err != nil || body.PhoneNumber == "" {
				return next(c)
			}

			decision, err := limiter.Allow(c.Request().Context(), body.PhoneNumber)
			if err != nil {
				log.Errorw("Phone rate limiting error",
					"phone_number", logger.MaskPhoneNumber(body.PhoneNumber),
					"error", err)
				return next(c)
			}

			masked := logger.MaskPhoneNumber(body.PhoneNumber)
			h := c.Response().Header()

			if !decision.Allowed {
				log.Warnw("Phone number rate limit exceeded",
					"phone_number", masked,
					"ip", c.RealIP(),
					"current_count", decision.Count,
					"limit", decision.Limit)

				h.Set(echo.HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds(time.Now())))
				return c.JSON(http.StatusTooManyRequests, entity.ErrorResponse{
					Error: "Too many requests for this phone number. Please try again later.",
				})
			}

			h.Set(HeaderPhoneLimitLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderPhoneLimitRemaining, strconv.Itoa(decision.Remaining))
			h.Set(HeaderPhoneLimitReset, decision.ResetAt.UTC().Format(time.RFC3339))

			return next(c)
		}
	}
}

// HMACAuthMiddleware rejects requests whose X-Signature does not match the raw body
func HMACAuthMiddleware(secret string, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			signature := c.Request().Header.Get(SignatureHeader)
			if signature == "" {
				log.Warnw("HMAC authentication failed - missing signature",
					"ip", c.RealIP(),
					"user_agent", c.Request().UserAgent(),
					"path", path)
				return c.JSON(http.StatusUnauthorized, entity.ErrorResponse{
					Error: "Authentication required",
				})
			}

			if !crypto.Verify(RawBody(c), signature, secret) {
				log.Warnw("HMAC authentication failed - invalid signature",
					"ip", c.RealIP(),
					"user_agent", c.Request().UserAgent(),
					"path", path)
				return c.JSON(http.StatusUnauthorized, entity.ErrorResponse{
					Error: "Authentication failed",
				})
			}

			log.Debugw("HMAC authentication successful", "ip", c.RealIP(), "path", path)
			return next(c)
		}
	}
}

// RequestLoggerMiddleware creates a request logging middleware
func RequestLoggerMiddleware(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			fields := []interface{}{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_addr", c.RealIP(),
				"user_agent", req.UserAgent(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Errorw("HTTP Response", fields...)
			case status >= http.StatusBadRequest:
				log.Warnw("HTTP Response", fields...)
			default:
				log.Infow("HTTP Response", fields...)
			}

			return nil
		}
	}
}

// ErrorHandler writes framework errors in the service's response envelope
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Internal server error"

		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			switch status {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				status = http.StatusNotFound
				message = "Endpoint not found"
			case http.StatusRequestEntityTooLarge:
				message = "Request body too large"
			case http.StatusInternalServerError:
			default:
				if m, ok := he.Message.(string); ok {
					message = m
				}
			}
		}

		if status >= http.StatusInternalServerError {
			log.Errorw("Unhandled error",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"error", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, entity.ErrorResponse{Error: message})
		}
		if writeErr != nil {
			log.Errorw("Failed to write error response", "error", writeErr)
		}
	}
}
