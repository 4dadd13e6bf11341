package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"otp-gateway/config"
	"otp-gateway/entity"
	"otp-gateway/pkg/clock"
	"otp-gateway/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of every verification token
const TokenIssuer = "otp-gateway"

// ErrTokensDisabled is returned when no verification token secret is configured
var ErrTokensDisabled = errors.New("verification tokens are disabled")

// JWTService interface defines verification token operations
type JWTService interface {
	// Enabled reports whether tokens are issued at all
	Enabled() bool
	GenerateToken(phoneNumber string) (*entity.VerificationToken, error)
	ValidateToken(tokenString string) (*VerificationClaims, error)
}

// jwtService implements JWTService interface
type jwtService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clocker
	logger *logger.Logger
}

// VerificationClaims represents the JWT claims of a verified phone number
type VerificationClaims struct {
	PhoneNumber string `json:"phone_number"`
	jwt.RegisteredClaims
}

// NewJWTService creates a new JWT service instance. An empty secret disables tokens.
func NewJWTService(cfg config.VerificationToken, clk clock.Clocker, logger *logger.Logger) JWTService {
	if clk == nil {
		clk = clock.New()
	}
	return &jwtService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		clock:  clk,
		logger: logger,
	}
}

func (s *jwtService) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateToken signs a token stating that phoneNumber was verified now
func (s *jwtService) GenerateToken(phoneNumber string) (*entity.VerificationToken, error) {
	if !s.Enabled() {
		return nil, ErrTokensDisabled
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	claims := VerificationClaims{
		PhoneNumber: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
			Subject:   "phone:" + phoneNumber,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Errorw("Failed to sign verification token", "phone_number", logger.MaskPhoneNumber(phoneNumber), "error", err)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Infow("Verification token generated", "phone_number", logger.MaskPhoneNumber(phoneNumber), "expires_at", expiresAt)

	return &entity.VerificationToken{
		Token:     tokenString,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken parses a verification token and checks its signature and lifetime
func (s *jwtService) ValidateToken(tokenString string) (*VerificationClaims, error) {
	if !s.Enabled() {
		return nil, ErrTokensDisabled
	}

	claims := &VerificationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		s.logger.Warnw("Failed to validate verification token", "error", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid || !strings.HasPrefix(claims.Subject, "phone:") {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
