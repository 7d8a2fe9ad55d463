// Package alert notifies operators when a submission could not be mailed.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"form-relay/internal/common/logger"
)

// SNSService is the subset of the SNS API used for alerts.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type DeliveryFailure struct {
	RequestID string    `json:"requestId"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Persisted bool      `json:"persisted"`
	At        time.Time `json:"at"`
}

type Notifier interface {
	DeliveryFailed(ctx context.Context, f DeliveryFailure)
}

type SNSNotifier struct {
	client   SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(client SNSService, topicARN string, log logger.Logger) *SNSNotifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SNSNotifier{client: client, topicARN: topicARN, logger: log}
}

// DeliveryFailed publishes f to the topic. Publish errors are only logged.
func (n *SNSNotifier) DeliveryFailed(ctx context.Context, f DeliveryFailure) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	if err := n.publish(context.WithoutCancel(ctx), f); err != nil {
		n.logger.Warn("Delivery failure alert not published", map[string]interface{}{
			"requestId": f.RequestID,
			"error":     err,
		})
	}
}

func (n *SNSNotifier) publish(ctx context.Context, f DeliveryFailure) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	subject := "Form relay: e-posta gonderilemedi"
	if !f.Persisted {
		subject = "Form relay: basvuru kaybedildi"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(f.Kind),
			},
		},
	})
	return err
}

// Nop discards alerts.
type Nop struct{}

func (Nop) DeliveryFailed(context.Context, DeliveryFailure) {}
