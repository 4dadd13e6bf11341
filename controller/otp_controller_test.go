package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otp-gateway/config"
	"otp-gateway/entity"
	"otp-gateway/pkg/clock"
	"otp-gateway/pkg/logger"
	"otp-gateway/provider"
	"otp-gateway/service"
	"otp-gateway/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPhone = "+15551234567"

type mockOTPService struct {
	mock.Mock
}

func (m *mockOTPService) RequestOTP(ctx context.Context, phoneNumber, idempotencyKey string) *entity.RequestOTPResult {
	return m.Called(ctx, phoneNumber, idempotencyKey).Get(0).(*entity.RequestOTPResult)
}

func (m *mockOTPService) VerifyOTP(ctx context.Context, phoneNumber, code string) *entity.VerifyOTPResult {
	return m.Called(ctx, phoneNumber, code).Get(0).(*entity.VerifyOTPResult)
}

func (m *mockOTPService) ReleaseOTP(ctx context.Context, phoneNumber, idempotencyKey string) {
	m.Called(ctx, phoneNumber, idempotencyKey)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Send(ctx context.Context, msg provider.Message) (*provider.SendResult, error) {
	args := m.Called(ctx, msg)
	result, _ := args.Get(0).(*provider.SendResult)
	return result, args.Error(1)
}

func (m *mockProvider) Name() string {
	return "mock"
}

type controllerFixture struct {
	otpService *mockOTPService
	provider   *mockProvider
	controller *OTPController
}

func newControllerFixture(tokenSecret string) *controllerFixture {
	otpService := new(mockOTPService)
	messenger := new(mockProvider)
	jwtService := service.NewJWTService(
		config.VerificationToken{Secret: tokenSecret, TTL: 15 * time.Minute},
		clock.NewFake(time.Now()),
		logger.NewNop(),
	)

	return &controllerFixture{
		otpService: otpService,
		provider:   messenger,
		controller: NewOTPController(otpService, jwtService, messenger, validator.New(), 5*time.Minute, logger.NewNop()),
	}
}

func doJSON(t *testing.T, h echo.HandlerFunc, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()

	require.NoError(t, h(e.NewContext(req, rec)))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestRequestOTP_Success(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("RequestOTP", mock.Anything, testPhone, "").
		Return(&entity.RequestOTPResult{Success: true, Code: "482913"})
	f.provider.On("Send", mock.Anything, provider.Message{
		To:   testPhone,
		Body: provider.RenderMessage("482913", 5*time.Minute),
		Code: "482913",
	}).Return(&provider.SendResult{MessageID: "wamid.1"}, nil)

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"+15551234567"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Verification code sent successfully", body["message"])
	assert.Equal(t, "wamid.1", body["messageId"])
	assert.NotContains(t, rec.Body.String(), "482913")
	f.otpService.AssertExpectations(t)
	f.provider.AssertExpectations(t)
}

func TestRequestOTP_ValidationFailure(t *testing.T) {
	f := newControllerFixture("")

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"12345"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid request data", body["error"])
	assert.Contains(t, body["details"], "phoneNumber")
	f.otpService.AssertNotCalled(t, "RequestOTP", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestOTP_MalformedBody(t *testing.T) {
	f := newControllerFixture("")

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request data", body["error"])
}

func TestRequestOTP_Cooldown(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("RequestOTP", mock.Anything, testPhone, "").Return(&entity.RequestOTPResult{
		Error:           service.ErrMsgCooldown,
		CooldownSeconds: 42,
		Failure:         entity.FailureBusiness,
	})

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"+15551234567"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ErrMsgCooldown, body["error"])
	assert.Equal(t, float64(42), body["retryAfter"])
	f.provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRequestOTP_FailureStatuses(t *testing.T) {
	tests := []struct {
		name    string
		failure entity.Failure
		status  int
	}{
		{"conflict", entity.FailureConflict, http.StatusConflict},
		{"infrastructure", entity.FailureInfrastructure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture("")
			f.otpService.On("RequestOTP", mock.Anything, testPhone, "k").
				Return(&entity.RequestOTPResult{Error: "nope", Failure: tt.failure})

			rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"+15551234567"}`,
				map[string]string{IdempotencyKeyHeader: "k"})

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "nope", body["error"])
			assert.NotContains(t, body, "retryAfter")
		})
	}
}

func TestRequestOTP_ReplaySkipsDelivery(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("RequestOTP", mock.Anything, testPhone, "retry-1").
		Return(&entity.RequestOTPResult{Success: true, Code: "482913", Replayed: true})

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"+15551234567"}`,
		map[string]string{IdempotencyKeyHeader: "retry-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	f.provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRequestOTP_DeliveryFailureReleasesIssuance(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("RequestOTP", mock.Anything, testPhone, "k").
		Return(&entity.RequestOTPResult{Success: true, Code: "482913"})
	f.otpService.On("ReleaseOTP", mock.Anything, testPhone, "k").Return()
	f.provider.On("Send", mock.Anything, mock.Anything).Return(nil, errors.New("provider down"))

	rec, body := doJSON(t, f.controller.RequestOTP, `{"phoneNumber":"+15551234567"}`,
		map[string]string{IdempotencyKeyHeader: "k"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send verification code. Please try again.", body["error"])
	assert.NotContains(t, rec.Body.String(), "provider down")
	f.otpService.AssertExpectations(t)
}

func TestVerifyOTP_Success(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("VerifyOTP", mock.Anything, testPhone, "482913").
		Return(&entity.VerifyOTPResult{Success: true})

	rec, body := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"482913"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Verification successful", body["message"])
	assert.NotContains(t, body, "token")
}

func TestVerifyOTP_SuccessWithToken(t *testing.T) {
	f := newControllerFixture("verification-token-secret-0123456789")

	f.otpService.On("VerifyOTP", mock.Anything, testPhone, "482913").
		Return(&entity.VerifyOTPResult{Success: true})

	rec, body := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"482913"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["tokenExpiresAt"])
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	f := newControllerFixture("")
	remaining := 3

	f.otpService.On("VerifyOTP", mock.Anything, testPhone, "000000").Return(&entity.VerifyOTPResult{
		Error:             service.ErrMsgInvalidCode,
		AttemptsRemaining: &remaining,
		Failure:           entity.FailureBusiness,
	})

	rec, body := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"000000"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ErrMsgInvalidCode, body["error"])
	assert.Equal(t, float64(3), body["attemptsRemaining"])
}

func TestVerifyOTP_ZeroAttemptsRemainingIsReported(t *testing.T) {
	f := newControllerFixture("")
	remaining := 0

	f.otpService.On("VerifyOTP", mock.Anything, testPhone, "000000").Return(&entity.VerifyOTPResult{
		Error:             service.ErrMsgInvalidCode,
		AttemptsRemaining: &remaining,
		Failure:           entity.FailureBusiness,
	})

	_, body := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"000000"}`, nil)

	assert.Equal(t, float64(0), body["attemptsRemaining"])
}

func TestVerifyOTP_InvalidCodeShape(t *testing.T) {
	f := newControllerFixture("")

	rec, body := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"12ab56"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["details"], "code")
	f.otpService.AssertNotCalled(t, "VerifyOTP", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyOTP_InfrastructureFailure(t *testing.T) {
	f := newControllerFixture("")

	f.otpService.On("VerifyOTP", mock.Anything, testPhone, "482913").Return(&entity.VerifyOTPResult{
		Error:   service.ErrMsgVerificationFailed,
		Failure: entity.FailureInfrastructure,
	})

	rec, _ := doJSON(t, f.controller.VerifyOTP, `{"phoneNumber":"+15551234567","code":"482913"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
