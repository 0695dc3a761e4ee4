package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueDeliverer publishes reminders as JSON onto an SQS queue for a
// downstream sender (SMS, push) to pick up.
type QueueDeliverer struct {
	client   SQSAPI
	queueURL string
}

func NewQueueDeliverer(client SQSAPI, queueURL string) *QueueDeliverer {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &QueueDeliverer{client: client, queueURL: queueURL}
}

func (q *QueueDeliverer) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode reminder: %w", err)
	}
	attrs := map[string]types.MessageAttributeValue{}
	// SQS rejects empty attribute values.
	for name, v := range map[string]string{"tier": msg.Tier, "lang": msg.To.Lang} {
		if v != "" {
			attrs[name] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

func (q *QueueDeliverer) Channel() Channel { return ChannelQueue }

var _ Deliverer = (*QueueDeliverer)(nil)
