package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"otp-gateway/config"
	"otp-gateway/pkg/logger"
)

const twilioAPIURL = "https://api.twilio.com"

// TwilioProvider sends WhatsApp messages through the Twilio Messages API
type TwilioProvider struct {
	cfg      config.Twilio
	settings httpSettings
	logger   *logger.Logger
}

type twilioResponse struct {
	SID string `json:"sid"`
}

// NewTwilioProvider creates a Twilio WhatsApp provider
func NewTwilioProvider(cfg config.Twilio, log *logger.Logger, opts ...HTTPOption) *TwilioProvider {
	return &TwilioProvider{
		cfg:      cfg,
		settings: newHTTPSettings(twilioAPIURL, opts),
		logger:   log,
	}
}

func (p *TwilioProvider) Name() string {
	return config.ProviderTwilio
}

func (p *TwilioProvider) endpoint() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.settings.baseURL, url.PathEscape(p.cfg.AccountSID))
}

func (p *TwilioProvider) Send(ctx context.Context, msg Message) (*SendResult, error) {
	masked := logger.MaskPhoneNumber(msg.To)

	form := url.Values{}
	form.Set("From", "whatsapp:"+p.cfg.FromNumber)
	form.Set("To", "whatsapp:+"+FormatPhoneNumber(msg.To))
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build twilio request: %w", err)
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p.logger.Infow("Sending WhatsApp message via Twilio API", "provider", p.Name(), "to", masked)

	resp, err := p.settings.client.Do(req)
	if err != nil {
		p.logger.Errorw("Failed to send WhatsApp message via Twilio API", "provider", p.Name(), "to", masked, "error", err)
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(respBody)}
		p.logger.Errorw("Failed to send WhatsApp message via Twilio API", "provider", p.Name(), "to", masked, "error", apiErr)
		return nil, apiErr
	}

	var decoded twilioResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode twilio response: %w", err)
	}

	p.logger.Infow("WhatsApp message sent successfully", "provider", p.Name(), "message_id", decoded.SID, "to", masked)

	return &SendResult{MessageID: decoded.SID}, nil
}
