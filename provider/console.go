package provider

import (
	"context"
	"fmt"
	"io"

	"otp-gateway/config"
	"otp-gateway/pkg/logger"

	"github.com/google/uuid"
)

// ConsoleProvider is a development provider that only logs deliveries
type ConsoleProvider struct {
	out      io.Writer
	showCode bool
	logger   *logger.Logger
}

// NewConsoleProvider creates a console provider. With showCode set the passcode
// is printed to out so a developer can complete the flow locally.
func NewConsoleProvider(out io.Writer, showCode bool, log *logger.Logger) *ConsoleProvider {
	return &ConsoleProvider{
		out:      out,
		showCode: showCode,
		logger:   log,
	}
}

func (p *ConsoleProvider) Name() string {
	return config.ProviderConsole
}

func (p *ConsoleProvider) Send(_ context.Context, msg Message) (*SendResult, error) {
	messageID := uuid.NewString()
	masked := logger.MaskPhoneNumber(msg.To)

	if p.showCode && p.out != nil {
		fmt.Fprintf(p.out, "🔐 OTP for %s: %s\n", masked, msg.Code)
	}

	p.logger.Infow("Message delivered to console", "provider", p.Name(), "message_id", messageID, "to", masked)

	return &SendResult{MessageID: messageID}, nil
}
