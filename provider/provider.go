// Package provider delivers rendered passcode messages over a messaging channel.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"otp-gateway/config"
	"otp-gateway/pkg/logger"
)

// DefaultHTTPTimeout bounds every call to a messaging API
const DefaultHTTPTimeout = 10 * time.Second

// Message is a single passcode delivery
type Message struct {
	To   string
	Body string
	Code string
}

// SendResult describes an accepted delivery
type SendResult struct {
	MessageID string
}

// Provider sends messages through one messaging backend
type Provider interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
	Name() string
}

// APIError is a non-2xx answer from a messaging API
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPOption customizes the HTTP based providers
type HTTPOption func(*httpSettings)

type httpSettings struct {
	baseURL string
	client  *http.Client
}

// WithBaseURL points a provider at a different API host
func WithBaseURL(baseURL string) HTTPOption {
	return func(s *httpSettings) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *httpSettings) {
		s.client = client
	}
}

func newHTTPSettings(defaultBaseURL string, opts []HTTPOption) httpSettings {
	s := httpSettings{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// FormatPhoneNumber keeps only digits and prefixes the US country code on bare
// 10-digit national numbers.
func FormatPhoneNumber(phoneNumber string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	formatted := b.String()

	if len(formatted) == 10 && !strings.HasPrefix(formatted, "1") {
		formatted = "1" + formatted
	}
	return formatted
}

// RenderMessage returns the passcode text sent to the user
func RenderMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is: %s. This code will expire in %d minutes. Do not share this code with anyone.",
		code, int(ttl.Minutes()))
}

// New builds the provider selected by MESSAGING_PROVIDER, throttled when a
// positive send rate is configured.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Messaging.Provider {
	case config.ProviderMeta:
		p = NewMetaProvider(cfg.Messaging.Meta, log)
	case config.ProviderTwilio:
		p = NewTwilioProvider(cfg.Messaging.Twilio, log)
	case config.ProviderSNS:
		p, err = NewSNSProvider(ctx, cfg.Messaging.SNS, log)
	case config.ProviderConsole:
		p = NewConsoleProvider(os.Stdout, !cfg.Application.IsProduction(), log)
	default:
		err = fmt.Errorf("unknown messaging provider %q", cfg.Messaging.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Messaging.RatePerSecond > 0 {
		p = NewThrottled(p, cfg.Messaging.RatePerSecond, cfg.Messaging.Burst)
	}

	log.Infow("Messaging provider initialized",
		"provider", p.Name(),
		"rate_per_second", cfg.Messaging.RatePerSecond)

	return p, nil
}
