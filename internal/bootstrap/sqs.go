package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ensureQueues creates the dead letter queue and the notification queue that
// redrives into it. CreateQueue is idempotent while attributes match.
func ensureQueues(ctx context.Context, client *sqs.Client, name, dlqName string, maxReceives int) (dlqURL, queueURL string, err error) {
	dlqURL, err = createQueue(ctx, client, dlqName, map[string]string{
		string(types.QueueAttributeNameMessageRetentionPeriod): "1209600", // 14 days
	})
	if err != nil {
		return "", "", err
	}

	attrs, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(dlqURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", fmt.Errorf("get attributes of %s: %w", dlqName, err)
	}

	redrive, err := redrivePolicy(attrs.Attributes[string(types.QueueAttributeNameQueueArn)], maxReceives)
	if err != nil {
		return "", "", err
	}

	queueURL, err = createQueue(ctx, client, name, map[string]string{
		string(types.QueueAttributeNameVisibilityTimeout):      "60",
		string(types.QueueAttributeNameMessageRetentionPeriod): "345600", // 4 days
		string(types.QueueAttributeNameRedrivePolicy):          redrive,
	})
	if err != nil {
		return "", "", err
	}

	return dlqURL, queueURL, nil
}

func redrivePolicy(dlqARN string, maxReceives int) (string, error) {
	if dlqARN == "" {
		return "", errors.New("dead letter queue has no ARN")
	}
	b, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     strconv.Itoa(maxReceives),
	})
	return string(b), err
}

func createQueue(ctx context.Context, client *sqs.Client, name string, attrs map[string]string) (string, error) {
	out, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("create queue %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func deleteQueue(ctx context.Context, client *sqs.Client, name string) error {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var missing *types.QueueDoesNotExist
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("lookup queue %s: %w", name, err)
	}

	if _, err := client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: out.QueueUrl}); err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}
