// Package bootstrap creates the table, notification queues and signature
// bucket the service needs, typically against LocalStack.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const waitTimeout = 30 * time.Second

// Bootstrap makes sure every resource for cfg.Environment exists.
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	env := cfg.Environment
	res := &Resources{TableName: TableName(env), Bucket: BucketName(env)}

	if cfg.CleanResources {
		log.Warn().Str("environment", env).Msg("deleting existing resources")
		if err := Teardown(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if err := ensureTable(ctx, cfg.DynamoClient, res.TableName); err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB table: %w", err)
	}

	var err error
	res.DeadLetterQueueURL, res.QueueURL, err = ensureQueues(ctx, cfg.SQSClient, QueueName(env), DeadLetterQueueName(env), cfg.MaxReceives)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS queues: %w", err)
	}

	if err := ensureBucket(ctx, cfg.S3Client, res.Bucket); err != nil {
		return nil, fmt.Errorf("failed to create S3 bucket: %w", err)
	}

	return res, nil
}

// Teardown deletes every resource of cfg.Environment. Missing resources are
// ignored.
func Teardown(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	env := cfg.Environment

	return errors.Join(
		deleteTable(ctx, cfg.DynamoClient, TableName(env)),
		deleteQueue(ctx, cfg.SQSClient, QueueName(env)),
		deleteQueue(ctx, cfg.SQSClient, DeadLetterQueueName(env)),
		deleteBucket(ctx, cfg.S3Client, BucketName(env)),
	)
}
