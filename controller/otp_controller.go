package controller

import (
	"net/http"
	"time"

	"otp-gateway/entity"
	"otp-gateway/pkg/logger"
	"otp-gateway/provider"
	"otp-gateway/service"
	"otp-gateway/validator"

	"github.com/labstack/echo/v4"
)

// IdempotencyKeyHeader carries the caller's retry token on issuance requests
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	msgCodeSent       = "Verification code sent successfully"
	msgVerified       = "Verification successful"
	msgInvalidRequest = "Invalid request data"
	msgDeliveryFailed = "Failed to send verification code. Please try again."
)

// OTPController handles OTP-related HTTP requests
type OTPController struct {
	otpService service.OTPService
	jwtService service.JWTService
	provider   provider.Provider
	validator  *validator.Validator
	otpTTL     time.Duration
	logger     *logger.Logger
}

// NewOTPController creates a new OTP controller instance
func NewOTPController(otpService service.OTPService, jwtService service.JWTService, provider provider.Provider, validator *validator.Validator, otpTTL time.Duration, logger *logger.Logger) *OTPController {
	return &OTPController{
		otpService: otpService,
		jwtService: jwtService,
		provider:   provider,
		validator:  validator,
		otpTTL:     otpTTL,
		logger:     logger,
	}
}

// RequestOTP handles OTP generation and delivery
// @Summary Request OTP
// @Description Generate a verification code and deliver it to the phone number
// @Tags OTP
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Retry token"
// @Param request body entity.RequestOTPRequest true "Request OTP"
// @Success 200 {object} entity.RequestOTPResponse
// @Failure 400 {object} entity.RequestOTPResponse
// @Failure 401 {object} entity.ErrorResponse
// @Failure 409 {object} entity.RequestOTPResponse
// @Failure 429 {object} entity.ErrorResponse
// @Failure 500 {object} entity.RequestOTPResponse
// @Router /otp/request [post]
func (c *OTPController) RequestOTP(ctx echo.Context) error {
	var req entity.RequestOTPRequest

	// Bind request body
	if err := ctx.Bind(&req); err != nil {
		c.logger.Warnw("Failed to bind request", "error", err)
		return ctx.JSON(http.StatusBadRequest, entity.ErrorResponse{
			Error:   msgInvalidRequest,
			Details: "request body must be a JSON object",
		})
	}

	// Validate request
	if err := c.validator.ValidateStruct(&req); err != nil {
		c.logger.Warnw("Validation failed", "phone_number", logger.MaskPhoneNumber(req.PhoneNumber), "error", err)
		return ctx.JSON(http.StatusBadRequest, entity.ErrorResponse{
			Error:   msgInvalidRequest,
			Details: err.Error(),
		})
	}

	idempotencyKey := ctx.Request().Header.Get(IdempotencyKeyHeader)
	masked := logger.MaskPhoneNumber(req.PhoneNumber)

	c.logger.Infow("OTP request received",
		"phone_number", masked,
		"idempotency_key", idempotencyKey,
		"ip", ctx.RealIP())

	result := c.otpService.RequestOTP(ctx.Request().Context(), req.PhoneNumber, idempotencyKey)
	if !result.Success {
		return ctx.JSON(statusForFailure(result.Failure), entity.RequestOTPResponse{
			Error:      result.Error,
			RetryAfter: result.CooldownSeconds,
		})
	}

	if result.Replayed {
		c.logger.Infow("Idempotent replay, delivery skipped", "phone_number", masked, "idempotency_key", idempotencyKey)
		return ctx.JSON(http.StatusOK, entity.RequestOTPResponse{
			Success: true,
			Message: msgCodeSent,
		})
	}

	sent, err := c.provider.Send(ctx.Request().Context(), provider.Message{
		To:   req.PhoneNumber,
		Body: provider.RenderMessage(result.Code, c.otpTTL),
		Code: result.Code,
	})
	if err != nil {
		c.logger.Errorw("Failed to deliver verification code",
			"phone_number", masked,
			"provider", c.provider.Name(),
			"error", err)

		// The caller never received this code: free the phone number for a clean retry
		c.otpService.ReleaseOTP(ctx.Request().Context(), req.PhoneNumber, idempotencyKey)

		return ctx.JSON(http.StatusInternalServerError, entity.RequestOTPResponse{
			Error: msgDeliveryFailed,
		})
	}

	c.logger.Infow("OTP sent successfully",
		"phone_number", masked,
		"message_id", sent.MessageID,
		"provider", c.provider.Name())

	return ctx.JSON(http.StatusOK, entity.RequestOTPResponse{
		Success:   true,
		Message:   msgCodeSent,
		MessageID: sent.MessageID,
	})
}

// VerifyOTP handles OTP verification
// @Summary Verify OTP
// @Description Check a verification code and optionally issue a verification token
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body entity.VerifyOTPRequest true "Verify OTP"
// @Success 200 {object} entity.VerifyOTPResponse
// @Failure 400 {object} entity.VerifyOTPResponse
// @Failure 401 {object} entity.ErrorResponse
// @Failure 429 {object} entity.ErrorResponse
// @Failure 500 {object} entity.VerifyOTPResponse
// @Router /otp/verify [post]
func (c *OTPController) VerifyOTP(ctx echo.Context) error {
	var req entity.VerifyOTPRequest

	// Bind request body
	if err := ctx.Bind(&req); err != nil {
		c.logger.Warnw("Failed to bind request", "error", err)
		return ctx.JSON(http.StatusBadRequest, entity.ErrorResponse{
			Error:   msgInvalidRequest,
			Details: "request body must be a JSON object",
		})
	}

	// Validate request
	if err := c.validator.ValidateStruct(&req); err != nil {
		c.logger.Warnw("Validation failed", "phone_number", logger.MaskPhoneNumber(req.PhoneNumber), "error", err)
		return ctx.JSON(http.StatusBadRequest, entity.ErrorResponse{
			Error:   msgInvalidRequest,
			Details: err.Error(),
		})
	}

	masked := logger.MaskPhoneNumber(req.PhoneNumber)
	c.logger.Infow("OTP verification request received", "phone_number", masked, "ip", ctx.RealIP())

	result := c.otpService.VerifyOTP(ctx.Request().Context(), req.PhoneNumber, req.Code)
	if !result.Success {
		return ctx.JSON(statusForFailure(result.Failure), entity.VerifyOTPResponse{
			Error:             result.Error,
			AttemptsRemaining: result.AttemptsRemaining,
		})
	}

	response := entity.VerifyOTPResponse{
		Success: true,
		Message: msgVerified,
	}

	if c.jwtService != nil && c.jwtService.Enabled() {
		// The code is already consumed, so a signing failure only drops the token
		token, err := c.jwtService.GenerateToken(req.PhoneNumber)
		if err != nil {
			c.logger.Errorw("Failed to generate verification token", "phone_number", masked, "error", err)
		} else {
			response.Token = token.Token
			response.TokenExpiresAt = &token.ExpiresAt
		}
	}

	return ctx.JSON(http.StatusOK, response)
}

func statusForFailure(failure entity.Failure) int {
	switch failure {
	case entity.FailureBusiness:
		return http.StatusBadRequest
	case entity.FailureConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
