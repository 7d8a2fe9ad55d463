package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES API used by the SES transport.
type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	GetSendQuota(ctx context.Context, input *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

type sesTransport struct {
	client SESService
}

func newSESTransport(client SESService) *sesTransport {
	return &sesTransport{client: client}
}

func (t *sesTransport) Verify(ctx context.Context) error {
	out, err := t.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return fmt.Errorf("SES unreachable: %w", err)
	}
	if out.Max24HourSend > 0 && out.SentLast24Hours >= out.Max24HourSend {
		return fmt.Errorf("SES daily quota exhausted (%.0f/%.0f)", out.SentLast24Hours, out.Max24HourSend)
	}
	return nil
}

func (t *sesTransport) Send(ctx context.Context, msg Message) error {
	_, err := t.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(msg.Sender),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(sanitizeHeader(msg.Subject)),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(msg.HTML),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	return nil
}
