package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/aefields/bastion/internal/models"
)

// EmailService defines the interface for sending notification emails
type EmailService interface {
	SendResetResolvedEmail(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error
}

// NoopEmailService discards all notifications. Used when email is disabled.
type NoopEmailService struct{}

func (NoopEmailService) SendResetResolvedEmail(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error {
	return nil
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendResetResolvedEmail tells the requester their password reset request
// was approved or rejected. The temporary password itself is never emailed;
// it is communicated out of band by the approving admin.
func (s *AWSSESEmailService) SendResetResolvedEmail(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error {
	var subject, textBody string

	switch status {
	case models.ResetStatusApproved:
		subject = "Your password reset request was approved"
		textBody = `Your password reset request has been approved.

An administrator has issued you a temporary password, which you will receive through a separate channel. Sign in with it and change your password immediately.
`
		if tempPasswordExpires != nil {
			textBody += fmt.Sprintf("\nThe temporary password expires at %s.\n", tempPasswordExpires.UTC().Format(time.RFC1123))
		}
	case models.ResetStatusRejected:
		subject = "Your password reset request was declined"
		textBody = `Your password reset request has been reviewed and declined.

If you still cannot access your account, please contact support.
`
	default:
		return fmt.Errorf("unknown reset status: %s", status)
	}

	textBody += "\nIf you did not request a password reset, contact support immediately.\n"

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send reset notification via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("reset notification sent",
		slog.String("status", status),
		slog.String("message_id", *result.MessageId))

	return nil
}
