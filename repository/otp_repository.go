package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"otp-gateway/entity"
	"otp-gateway/pkg/logger"
)

// PasscodeKey returns the store key of the active passcode for a phone number
func PasscodeKey(phoneNumber string) string {
	return "otp:" + phoneNumber
}

// CooldownKey returns the store key of the cooldown marker for a phone number
func CooldownKey(phoneNumber string) string {
	return "cooldown:" + phoneNumber
}

// IdempotencyKey returns the store key of a cached issuance outcome
func IdempotencyKey(key string) string {
	return "idempotency:" + key
}

// IdempotencyLockKey returns the store key used to claim an idempotency token
func IdempotencyLockKey(key string) string {
	return "idempotency:" + key + ":lock"
}

// OTPRepository interface defines passcode, cooldown and idempotency storage
type OTPRepository interface {
	GetPasscode(ctx context.Context, phoneNumber string) (*entity.PasscodeRecord, error)
	SavePasscode(ctx context.Context, record entity.PasscodeRecord, ttl time.Duration) error
	UpdatePasscode(ctx context.Context, record entity.PasscodeRecord) error
	DeletePasscode(ctx context.Context, phoneNumber string) error

	CooldownRemaining(ctx context.Context, phoneNumber string) (time.Duration, error)
	SetCooldown(ctx context.Context, phoneNumber string, ttl time.Duration) error
	DeleteCooldown(ctx context.Context, phoneNumber string) error

	GetIdempotency(ctx context.Context, key string) (*entity.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, key string, record entity.IdempotencyRecord, ttl time.Duration) error
	ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteIdempotency(ctx context.Context, key string) error
}

// otpRepository implements OTPRepository on a KeyValueStore
type otpRepository struct {
	store  KeyValueStore
	logger *logger.Logger
}

// NewOTPRepository creates a new OTP repository instance
func NewOTPRepository(store KeyValueStore, logger *logger.Logger) OTPRepository {
	return &otpRepository{
		store:  store,
		logger: logger,
	}
}

// GetPasscode returns the active passcode, or nil when none exists
func (r *otpRepository) GetPasscode(ctx context.Context, phoneNumber string) (*entity.PasscodeRecord, error) {
	data, err := r.store.Get(ctx, PasscodeKey(phoneNumber))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get passcode: %w", err)
	}

	var record entity.PasscodeRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal passcode: %w", err)
	}

	return &record, nil
}

// SavePasscode writes a fresh passcode with the full TTL
func (r *otpRepository) SavePasscode(ctx context.Context, record entity.PasscodeRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal passcode: %w", err)
	}

	if err := r.store.SetEX(ctx, PasscodeKey(record.PhoneNumber), string(data), ttl); err != nil {
		return fmt.Errorf("failed to save passcode: %w", err)
	}

	return nil
}

// UpdatePasscode rewrites an existing passcode keeping its remaining TTL.
// A record that disappeared since it was read is not recreated.
func (r *otpRepository) UpdatePasscode(ctx context.Context, record entity.PasscodeRecord) error {
	key := PasscodeKey(record.PhoneNumber)

	ttl, err := r.store.TTL(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get passcode ttl: %w", err)
	}

	switch {
	case ttl == TTLNoKey:
		r.logger.Debugw("Passcode vanished before update, skipping rewrite",
			"phone_number", logger.MaskPhoneNumber(record.PhoneNumber))
		return nil
	case ttl == TTLNoExpiry || ttl <= 0:
		// Fall back to the record's own deadline so the rewrite still expires
		ttl = time.Until(record.ExpiresAt)
		if ttl <= 0 {
			return r.DeletePasscode(ctx, record.PhoneNumber)
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal passcode: %w", err)
	}

	if err := r.store.SetEX(ctx, key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to update passcode: %w", err)
	}

	r.logger.Debugw("Passcode updated with preserved TTL",
		"phone_number", logger.MaskPhoneNumber(record.PhoneNumber),
		"attempts", record.Attempts,
		"ttl_seconds", int(ttl.Seconds()))

	return nil
}

func (r *otpRepository) DeletePasscode(ctx context.Context, phoneNumber string) error {
	if err := r.store.Del(ctx, PasscodeKey(phoneNumber)); err != nil {
		return fmt.Errorf("failed to delete passcode: %w", err)
	}
	return nil
}

// CooldownRemaining returns how long the phone number stays blocked, 0 when it is not
func (r *otpRepository) CooldownRemaining(ctx context.Context, phoneNumber string) (time.Duration, error) {
	ttl, err := r.store.TTL(ctx, CooldownKey(phoneNumber))
	if err != nil {
		return 0, fmt.Errorf("failed to get cooldown ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *otpRepository) SetCooldown(ctx context.Context, phoneNumber string, ttl time.Duration) error {
	if err := r.store.SetEX(ctx, CooldownKey(phoneNumber), "1", ttl); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func (r *otpRepository) DeleteCooldown(ctx context.Context, phoneNumber string) error {
	if err := r.store.Del(ctx, CooldownKey(phoneNumber)); err != nil {
		return fmt.Errorf("failed to delete cooldown: %w", err)
	}
	return nil
}

// GetIdempotency returns the cached outcome for key, or nil when none exists
func (r *otpRepository) GetIdempotency(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	data, err := r.store.Get(ctx, IdempotencyKey(key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record entity.IdempotencyRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}

	return &record, nil
}

func (r *otpRepository) SaveIdempotency(ctx context.Context, key string, record entity.IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	if err := r.store.SetEX(ctx, IdempotencyKey(key), string(data), ttl); err != nil {
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}

	return nil
}

// ClaimIdempotency reports whether the caller is the first to use key within ttl
func (r *otpRepository) ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := IdempotencyLockKey(key)

	n, err := r.store.Incr(ctx, lockKey)
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if n != 1 {
		return false, nil
	}

	if err := r.store.Expire(ctx, lockKey, ttl); err != nil {
		// Without an expiry the lock would block the token forever
		_ = r.store.Del(ctx, lockKey)
		return false, fmt.Errorf("failed to set idempotency lock ttl: %w", err)
	}

	return true, nil
}

// DeleteIdempotency removes both the cached outcome and the claim for key
func (r *otpRepository) DeleteIdempotency(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, IdempotencyKey(key)); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	if err := r.store.Del(ctx, IdempotencyLockKey(key)); err != nil {
		return fmt.Errorf("failed to delete idempotency lock: %w", err)
	}
	return nil
}
