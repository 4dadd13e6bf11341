package entity

import (
	"time"
)

// PasscodeRecord is the active passcode for a phone number, stored under otp:<phone>
type PasscodeRecord struct {
	Code        string    `json:"code"`
	PhoneNumber string    `json:"phoneNumber"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// WithFailedAttempt returns a copy of the record with one more failed attempt
func (p PasscodeRecord) WithFailedAttempt() PasscodeRecord {
	p.Attempts++
	return p
}

// IdempotencyRecord caches the outcome of an issuance under idempotency:<key>
type IdempotencyRecord struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failure classifies why a lifecycle operation did not succeed
type Failure int

const (
	// FailureNone means the operation succeeded
	FailureNone Failure = iota
	// FailureBusiness is a rule violation the caller can act on (cooldown, expiry, mismatch...)
	FailureBusiness
	// FailureConflict means another request holds the same idempotency key
	FailureConflict
	// FailureInfrastructure means the store (or another dependency) failed
	FailureInfrastructure
)

// RequestOTPResult is the outcome of an issuance
type RequestOTPResult struct {
	Success         bool
	Code            string
	Error           string
	CooldownSeconds int
	Failure         Failure
	// Replayed is set when the result came from the idempotency cache
	Replayed bool
}

// VerifyOTPResult is the outcome of a verification
type VerifyOTPResult struct {
	Success           bool
	Error             string
	AttemptsRemaining *int
	Failure           Failure
}

// RequestOTPRequest represents the request to issue an OTP
type RequestOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_number"`
}

// VerifyOTPRequest represents the request to verify an OTP
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_number"`
	Code        string `json:"code" validate:"required,otp_code"`
}

// RequestOTPResponse is the HTTP body returned by the issuance endpoint
type RequestOTPResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	MessageID  string `json:"messageId,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// VerifyOTPResponse is the HTTP body returned by the verification endpoint
type VerifyOTPResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message,omitempty"`
	Error             string     `json:"error,omitempty"`
	AttemptsRemaining *int       `json:"attemptsRemaining,omitempty"`
	Token             string     `json:"token,omitempty"`
	TokenExpiresAt    *time.Time `json:"tokenExpiresAt,omitempty"`
}

// ErrorResponse is the generic failure body used by middleware and validation
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// VerificationToken proves that a phone number passed verification
type VerificationToken struct {
	Token     string
	ExpiresAt time.Time
}
