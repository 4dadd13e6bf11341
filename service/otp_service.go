package service

import (
	"context"
	"time"

	"otp-gateway/config"
	"otp-gateway/entity"
	"otp-gateway/pkg/clock"
	"otp-gateway/pkg/crypto"
	"otp-gateway/pkg/logger"
	"otp-gateway/repository"
)

const (
	ErrMsgCooldown           = "Too many recent requests. Please wait before requesting another OTP."
	ErrMsgGenerationFailed   = "Failed to generate OTP. Please try again."
	ErrMsgRequestInProgress  = "A request with this idempotency key is already in progress."
	ErrMsgInvalidOrExpired   = "Invalid or expired verification code."
	ErrMsgExpired            = "Verification code has expired."
	ErrMsgTooManyAttempts    = "Too many invalid attempts. Please request a new verification code."
	ErrMsgInvalidCode        = "Invalid verification code."
	ErrMsgVerificationFailed = "Failed to verify code. Please try again."
)

// How long a caller that lost the idempotency claim waits for the winner's outcome
var (
	idempotencyPollInterval = 100 * time.Millisecond
	idempotencyWaitTimeout  = 3 * time.Second
)

// OTPService interface defines the passcode lifecycle
type OTPService interface {
	// RequestOTP issues a passcode for the phone number. A non-empty
	// idempotencyKey makes retries return the first outcome verbatim.
	RequestOTP(ctx context.Context, phoneNumber, idempotencyKey string) *entity.RequestOTPResult
	// VerifyOTP checks a submitted code against the active passcode
	VerifyOTP(ctx context.Context, phoneNumber, code string) *entity.VerifyOTPResult
	// ReleaseOTP undoes an issuance whose code could not be delivered
	ReleaseOTP(ctx context.Context, phoneNumber, idempotencyKey string)
}

// otpService implements OTPService interface
type otpService struct {
	otpRepo     repository.OTPRepository
	ttl         time.Duration
	maxAttempts int
	cooldown    time.Duration
	clock       clock.Clocker
	logger      *logger.Logger
}

// NewOTPService creates a new OTP service instance
func NewOTPService(otpRepo repository.OTPRepository, cfg config.OTP, clk clock.Clocker, logger *logger.Logger) OTPService {
	if clk == nil {
		clk = clock.New()
	}
	return &otpService{
		otpRepo:     otpRepo,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
		clock:       clk,
		logger:      logger,
	}
}

func (s *otpService) RequestOTP(ctx context.Context, phoneNumber, idempotencyKey string) *entity.RequestOTPResult {
	masked := logger.MaskPhoneNumber(phoneNumber)

	if idempotencyKey != "" {
		cached, err := s.otpRepo.GetIdempotency(ctx, idempotencyKey)
		if err != nil {
			s.logger.Errorw("Failed to read idempotency record", "phone_number", masked, "error", err)
			return generationFailed()
		}
		if cached != nil {
			s.logger.Infow("Returning cached OTP response for idempotency key",
				"phone_number", masked, "idempotency_key", idempotencyKey)
			return replayed(cached)
		}

		claimed, err := s.otpRepo.ClaimIdempotency(ctx, idempotencyKey, s.ttl)
		if err != nil {
			s.logger.Errorw("Failed to claim idempotency key", "phone_number", masked, "error", err)
			return generationFailed()
		}
		if !claimed {
			return s.awaitIdempotentResult(ctx, masked, idempotencyKey)
		}
	}

	result := s.issue(ctx, phoneNumber, idempotencyKey)
	if !result.Success && idempotencyKey != "" {
		if err := s.otpRepo.DeleteIdempotency(ctx, idempotencyKey); err != nil {
			s.logger.Warnw("Failed to release idempotency claim", "idempotency_key", idempotencyKey, "error", err)
		}
	}
	return result
}

// issue runs the cooldown check and the writes of a fresh passcode. The writes
// are independent: a failure part way through is reported as "no code issued".
func (s *otpService) issue(ctx context.Context, phoneNumber, idempotencyKey string) *entity.RequestOTPResult {
	masked := logger.MaskPhoneNumber(phoneNumber)

	remaining, err := s.otpRepo.CooldownRemaining(ctx, phoneNumber)
	if err != nil {
		s.logger.Errorw("Failed to check cooldown", "phone_number", masked, "error", err)
		return generationFailed()
	}
	if remaining > 0 {
		seconds := ceilSeconds(remaining)
		s.logger.Warnw("OTP request blocked due to cooldown", "phone_number", masked, "cooldown_seconds", seconds)
		return &entity.RequestOTPResult{
			Error:           ErrMsgCooldown,
			CooldownSeconds: seconds,
			Failure:         entity.FailureBusiness,
		}
	}

	code, err := crypto.GenerateCode()
	if err != nil {
		s.logger.Errorw("Failed to generate OTP code", "error", err)
		return generationFailed()
	}

	now := s.clock.Now()
	record := entity.PasscodeRecord{
		Code:        code,
		PhoneNumber: phoneNumber,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.otpRepo.SavePasscode(ctx, record, s.ttl); err != nil {
		s.logger.Errorw("Failed to store OTP", "phone_number", masked, "error", err)
		return generationFailed()
	}
	if err := s.otpRepo.SetCooldown(ctx, phoneNumber, s.cooldown); err != nil {
		s.logger.Errorw("Failed to set cooldown", "phone_number", masked, "error", err)
		return generationFailed()
	}
	if idempotencyKey != "" {
		cached := entity.IdempotencyRecord{Success: true, Code: code}
		if err := s.otpRepo.SaveIdempotency(ctx, idempotencyKey, cached, s.ttl); err != nil {
			s.logger.Errorw("Failed to cache idempotent response", "phone_number", masked, "error", err)
			return generationFailed()
		}
	}

	s.logger.Infow("OTP generated successfully",
		"phone_number", masked,
		"expires_at", record.ExpiresAt,
		"idempotency_key", idempotencyKeyOrNone(idempotencyKey))

	return &entity.RequestOTPResult{Success: true, Code: code}
}

// awaitIdempotentResult polls for the outcome of the request holding the claim
func (s *otpService) awaitIdempotentResult(ctx context.Context, masked, idempotencyKey string) *entity.RequestOTPResult {
	ctx, cancel := context.WithTimeout(ctx, idempotencyWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(idempotencyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Warnw("Idempotent request still in progress", "phone_number", masked, "idempotency_key", idempotencyKey)
			return &entity.RequestOTPResult{
				Error:   ErrMsgRequestInProgress,
				Failure: entity.FailureConflict,
			}
		case <-ticker.C:
			cached, err := s.otpRepo.GetIdempotency(ctx, idempotencyKey)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Errorw("Failed to read idempotency record", "phone_number", masked, "error", err)
				return generationFailed()
			}
			if cached != nil {
				s.logger.Infow("Returning cached OTP response for idempotency key",
					"phone_number", masked, "idempotency_key", idempotencyKey)
				return replayed(cached)
			}
		}
	}
}

func (s *otpService) VerifyOTP(ctx context.Context, phoneNumber, code string) *entity.VerifyOTPResult {
	masked := logger.MaskPhoneNumber(phoneNumber)

	record, err := s.otpRepo.GetPasscode(ctx, phoneNumber)
	if err != nil {
		s.logger.Errorw("Failed to verify OTP", "phone_number", masked, "error", err)
		return verificationFailed()
	}
	if record == nil {
		s.logger.Warnw("OTP verification failed - no OTP found", "phone_number", masked)
		return rejected(ErrMsgInvalidOrExpired)
	}

	if s.clock.Now().After(record.ExpiresAt) {
		if err := s.otpRepo.DeletePasscode(ctx, phoneNumber); err != nil {
			s.logger.Errorw("Failed to delete expired OTP", "phone_number", masked, "error", err)
			return verificationFailed()
		}
		s.logger.Warnw("OTP verification failed - expired", "phone_number", masked)
		return rejected(ErrMsgExpired)
	}

	if record.Attempts >= s.maxAttempts {
		if err := s.otpRepo.DeletePasscode(ctx, phoneNumber); err != nil {
			s.logger.Errorw("Failed to delete exhausted OTP", "phone_number", masked, "error", err)
			return verificationFailed()
		}
		s.logger.Warnw("OTP verification failed - too many attempts", "phone_number", masked, "attempts", record.Attempts)
		return rejected(ErrMsgTooManyAttempts)
	}

	if record.Code != code {
		// Read-increment-write: concurrent mismatches may under-count attempts
		updated := record.WithFailedAttempt()
		attemptsRemaining := s.maxAttempts - updated.Attempts
		if attemptsRemaining <= 0 {
			attemptsRemaining = 0
			err = s.otpRepo.DeletePasscode(ctx, phoneNumber)
		} else {
			err = s.otpRepo.UpdatePasscode(ctx, updated)
		}
		if err != nil {
			s.logger.Errorw("Failed to record failed attempt", "phone_number", masked, "error", err)
			return verificationFailed()
		}

		s.logger.Warnw("OTP verification failed - invalid code",
			"phone_number", masked,
			"attempts", updated.Attempts,
			"attempts_remaining", attemptsRemaining)

		result := rejected(ErrMsgInvalidCode)
		result.AttemptsRemaining = &attemptsRemaining
		return result
	}

	if err := s.otpRepo.DeletePasscode(ctx, phoneNumber); err != nil {
		s.logger.Errorw("Failed to consume OTP", "phone_number", masked, "error", err)
		return verificationFailed()
	}

	s.logger.Infow("OTP verified successfully", "phone_number", masked)
	return &entity.VerifyOTPResult{Success: true}
}

func (s *otpService) ReleaseOTP(ctx context.Context, phoneNumber, idempotencyKey string) {
	masked := logger.MaskPhoneNumber(phoneNumber)

	if err := s.otpRepo.DeletePasscode(ctx, phoneNumber); err != nil {
		s.logger.Errorw("Failed to release OTP", "phone_number", masked, "error", err)
	}
	if err := s.otpRepo.DeleteCooldown(ctx, phoneNumber); err != nil {
		s.logger.Errorw("Failed to release cooldown", "phone_number", masked, "error", err)
	}
	if idempotencyKey != "" {
		if err := s.otpRepo.DeleteIdempotency(ctx, idempotencyKey); err != nil {
			s.logger.Errorw("Failed to release idempotency record", "idempotency_key", idempotencyKey, "error", err)
		}
	}

	s.logger.Infow("OTP issuance released", "phone_number", masked)
}

func replayed(cached *entity.IdempotencyRecord) *entity.RequestOTPResult {
	result := &entity.RequestOTPResult{
		Success:  cached.Success,
		Code:     cached.Code,
		Error:    cached.Error,
		Replayed: true,
	}
	if !cached.Success {
		result.Failure = entity.FailureBusiness
	}
	return result
}

func generationFailed() *entity.RequestOTPResult {
	return &entity.RequestOTPResult{
		Error:   ErrMsgGenerationFailed,
		Failure: entity.FailureInfrastructure,
	}
}

func rejected(msg string) *entity.VerifyOTPResult {
	return &entity.VerifyOTPResult{Error: msg, Failure: entity.FailureBusiness}
}

func verificationFailed() *entity.VerifyOTPResult {
	return &entity.VerifyOTPResult{Error: ErrMsgVerificationFailed, Failure: entity.FailureInfrastructure}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func idempotencyKeyOrNone(key string) string {
	if key == "" {
		return "none"
	}
	return key
}
