// Package notify sends templated notifications to people. Delivery is owned
// by a downstream mailer; this package only hands messages off.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// Template names understood by the mailer.
const (
	TemplateLoadAssigned  = "load-assigned"
	TemplateLoadCompleted = "load-completed"
	TemplateUserInvite    = "user-invite"
)

// Message is a single templated notification.
type Message struct {
	To       string            `json:"to"`
	ReplyTo  string            `json:"replyTo,omitempty"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// Notifier hands a message to the delivery channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

var (
	_ Notifier = (*SQSNotifier)(nil)
	_ Notifier = LogNotifier{}
)

// SQSNotifier enqueues messages for the mailer.
type SQSNotifier struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSNotifier creates a notifier publishing to queueURL.
func NewSQSNotifier(client *sqs.Client, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func (n *SQSNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	out, err := n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"template": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Template),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send notification to SQS: %w", err)
	}

	log.Debug().
		Str("template", msg.Template).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("notification queued")

	return nil
}

// LogNotifier only logs messages. Used in development.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("template", msg.Template).
		Interface("data", msg.Data).
		Msg("notification")
	return nil
}
