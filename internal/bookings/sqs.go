package bookings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes each booking as a JSON message for downstream scheduling.
type SQSSink struct {
	client   sqsAPI
	queueURL string
}

func NewSQSSink(client *sqs.Client, queueURL string) *SQSSink {
	if client == nil {
		panic("bookings: SQS client cannot be nil")
	}
	return newSQSSink(client, queueURL)
}

func newSQSSink(client sqsAPI, queueURL string) *SQSSink {
	if queueURL == "" {
		panic("bookings: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Record(ctx context.Context, b Booking) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("bookings: marshal booking: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"trigger": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(b.Trigger)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("bookings: failed to send SQS message: %w", err)
	}
	return nil
}
