package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"otp-gateway/config"
	"otp-gateway/pkg/logger"
)

const metaGraphURL = "https://graph.facebook.com"

// MetaProvider sends WhatsApp template messages through the Meta Cloud API
type MetaProvider struct {
	cfg      config.Meta
	settings httpSettings
	logger   *logger.Logger
}

type metaTemplateRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         metaTemplate `json:"template"`
}

type metaTemplate struct {
	Name       string          `json:"name"`
	Language   metaLanguage    `json:"language"`
	Components []metaComponent `json:"components"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

type metaComponent struct {
	Type       string          `json:"type"`
	SubType    string          `json:"sub_type,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Parameters []metaParameter `json:"parameters"`
}

type metaParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type metaResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// NewMetaProvider creates a Meta WhatsApp provider
func NewMetaProvider(cfg config.Meta, log *logger.Logger, opts ...HTTPOption) *MetaProvider {
	return &MetaProvider{
		cfg:      cfg,
		settings: newHTTPSettings(metaGraphURL, opts),
		logger:   log,
	}
}

func (p *MetaProvider) Name() string {
	return config.ProviderMeta
}

func (p *MetaProvider) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", p.settings.baseURL, p.cfg.APIVersion, p.cfg.PhoneNumberID)
}

// Send delivers the code as both the body parameter and the copy-code button parameter
func (p *MetaProvider) Send(ctx context.Context, msg Message) (*SendResult, error) {
	masked := logger.MaskPhoneNumber(msg.To)
	buttonIndex := 0
	codeParam := []metaParameter{{Type: "text", Text: msg.Code}}

	payload := metaTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               FormatPhoneNumber(msg.To),
		Type:             "template",
		Template: metaTemplate{
			Name:     p.cfg.TemplateName,
			Language: metaLanguage{Code: p.cfg.TemplateLang},
			Components: []metaComponent{
				{Type: "body", Parameters: codeParam},
				{Type: "button", SubType: "url", Index: &buttonIndex, Parameters: codeParam},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build meta request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	p.logger.Infow("Sending WhatsApp message via Meta API", "provider", p.Name(), "to", masked)

	resp, err := p.settings.client.Do(req)
	if err != nil {
		p.logger.Errorw("Failed to send WhatsApp message via Meta API", "provider", p.Name(), "to", masked, "error", err)
		return nil, fmt.Errorf("meta request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read meta response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(respBody)}
		p.logger.Errorw("Failed to send WhatsApp message via Meta API", "provider", p.Name(), "to", masked, "error", apiErr)
		return nil, apiErr
	}

	var decoded metaResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode meta response: %w", err)
	}

	result := &SendResult{}
	if len(decoded.Messages) > 0 {
		result.MessageID = decoded.Messages[0].ID
	}

	p.logger.Infow("WhatsApp message sent successfully", "provider", p.Name(), "message_id", result.MessageID, "to", masked)

	return result, nil
}
