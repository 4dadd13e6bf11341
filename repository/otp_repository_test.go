package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"otp-gateway/entity"
	"otp-gateway/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "+15551234567"

func TestOTPRepository_PasscodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	record, err := repo.GetPasscode(ctx, testPhone)
	require.NoError(t, err)
	assert.Nil(t, record)

	now := clk.Now()
	saved := entity.PasscodeRecord{
		Code:        "123456",
		PhoneNumber: testPhone,
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	require.NoError(t, repo.SavePasscode(ctx, saved, 5*time.Minute))

	record, err = repo.GetPasscode(ctx, testPhone)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "123456", record.Code)
	assert.Equal(t, 0, record.Attempts)
	assert.True(t, saved.ExpiresAt.Equal(record.ExpiresAt))

	raw, err := store.Get(ctx, "otp:"+testPhone)
	require.NoError(t, err)
	assert.Contains(t, raw, `"phoneNumber":"+15551234567"`)

	require.NoError(t, repo.DeletePasscode(ctx, testPhone))
	record, err = repo.GetPasscode(ctx, testPhone)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestOTPRepository_UpdatePasscodePreservesTTL(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	now := clk.Now()
	record := entity.PasscodeRecord{Code: "123456", PhoneNumber: testPhone, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	require.NoError(t, repo.SavePasscode(ctx, record, 5*time.Minute))

	clk.Advance(2 * time.Minute)
	require.NoError(t, repo.UpdatePasscode(ctx, record.WithFailedAttempt()))

	ttl, err := store.TTL(ctx, PasscodeKey(testPhone))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, ttl, "update must never extend the lifetime")

	stored, err := repo.GetPasscode(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
}

func TestOTPRepository_UpdatePasscodeDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	now := clk.Now()
	record := entity.PasscodeRecord{Code: "123456", PhoneNumber: testPhone, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}

	require.NoError(t, repo.UpdatePasscode(ctx, record.WithFailedAttempt()))

	stored, err := repo.GetPasscode(ctx, testPhone)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, 0, store.Len())
}

func TestOTPRepository_Cooldown(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	remaining, err := repo.CooldownRemaining(ctx, testPhone)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.NoError(t, repo.SetCooldown(ctx, testPhone, time.Minute))
	clk.Advance(20 * time.Second)

	remaining, err = repo.CooldownRemaining(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, remaining)

	require.NoError(t, repo.DeleteCooldown(ctx, testPhone))
	remaining, err = repo.CooldownRemaining(ctx, testPhone)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestOTPRepository_Idempotency(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	record, err := repo.GetIdempotency(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, record)

	claimed, err := repo.ClaimIdempotency(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimIdempotency(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.SaveIdempotency(ctx, "abc", entity.IdempotencyRecord{Success: true, Code: "654321"}, time.Minute))

	raw, err := store.Get(ctx, "idempotency:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"code":"654321"}`, raw)

	record, err = repo.GetIdempotency(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, &entity.IdempotencyRecord{Success: true, Code: "654321"}, record)

	require.NoError(t, repo.DeleteIdempotency(ctx, "abc"))
	record, err = repo.GetIdempotency(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, record)

	claimed, err = repo.ClaimIdempotency(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "token can be claimed again after release")
}

func TestOTPRepository_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()
	repo := NewOTPRepository(store, logger.NewNop())

	require.NoError(t, store.SetEX(ctx, PasscodeKey(testPhone), "{not json", time.Minute))
	_, err := repo.GetPasscode(ctx, testPhone)
	assert.Error(t, err)
}

// failingStore fails every command with err
type failingStore struct {
	err error
}

func (f failingStore) Get(context.Context, string) (string, error) { return "", f.err }
func (f failingStore) SetEX(context.Context, string, string, time.Duration) error {
	return f.err
}
func (f failingStore) Incr(context.Context, string) (int64, error) { return 0, f.err }
func (f failingStore) Expire(context.Context, string, time.Duration) error { return f.err }
func (f failingStore) TTL(context.Context, string) (time.Duration, error) { return 0, f.err }
func (f failingStore) Del(context.Context, string) error { return f.err }
func (f failingStore) Ping(context.Context) error { return f.err }

func TestOTPRepository_StoreErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")
	repo := NewOTPRepository(failingStore{err: storeErr}, logger.NewNop())

	_, err := repo.GetPasscode(ctx, testPhone)
	assert.ErrorIs(t, err, storeErr)

	_, err = repo.CooldownRemaining(ctx, testPhone)
	assert.ErrorIs(t, err, storeErr)

	_, err = repo.ClaimIdempotency(ctx, "abc", time.Minute)
	assert.ErrorIs(t, err, storeErr)
}
