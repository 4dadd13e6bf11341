package provider

import (
	"context"
	"fmt"

	"otp-gateway/config"
	"otp-gateway/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the part of the SNS client used for SMS delivery
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider sends transactional SMS through AWS SNS
type SNSProvider struct {
	client   SNSPublisher
	senderID string
	logger   *logger.Logger
}

// NewSNSProvider creates an SNS provider using the default AWS credential chain
func NewSNSProvider(ctx context.Context, cfg config.SNS, log *logger.Logger) (*SNSProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSProviderWithClient(sns.NewFromConfig(awsCfg), cfg.SenderID, log), nil
}

// NewSNSProviderWithClient creates an SNS provider around an existing client
func NewSNSProviderWithClient(client SNSPublisher, senderID string, log *logger.Logger) *SNSProvider {
	return &SNSProvider{
		client:   client,
		senderID: senderID,
		logger:   log,
	}
}

func (p *SNSProvider) Name() string {
	return config.ProviderSNS
}

func (p *SNSProvider) Send(ctx context.Context, msg Message) (*SendResult, error) {
	masked := logger.MaskPhoneNumber(msg.To)

	attributes := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if p.senderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.senderID),
		}
	}

	p.logger.Infow("Sending SMS via AWS SNS", "provider", p.Name(), "to", masked)

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String("+" + FormatPhoneNumber(msg.To)),
		Message:           aws.String(msg.Body),
		MessageAttributes: attributes,
	})
	if err != nil {
		p.logger.Errorw("Failed to send SMS via AWS SNS", "provider", p.Name(), "to", masked, "error", err)
		return nil, fmt.Errorf("sns publish failed: %w", err)
	}

	result := &SendResult{MessageID: aws.ToString(out.MessageId)}
	p.logger.Infow("SMS sent successfully", "provider", p.Name(), "message_id", result.MessageID, "to", masked)

	return result, nil
}
