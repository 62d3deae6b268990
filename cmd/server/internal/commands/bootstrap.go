package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/loadboard/internal/bootstrap"
	"github.com/wolfeidau/loadboard/internal/logger"
)

type BootstrapCmd struct {
	Environment string   `help:"environment name used as the resource prefix" default:"dev" env:"LOADBOARD_ENVIRONMENT"`
	Clean       bool     `help:"delete existing resources first (deletes all data)" default:"false"`
	Teardown    bool     `help:"delete the resources instead of creating them" default:"false"`
	MaxReceives int      `help:"deliveries before a notification moves to the dead letter queue" default:"5"`
	AWS         AWSFlags `embed:"" prefix:"aws-"`
}

func (c *BootstrapCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.AWS.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	bcfg := bootstrap.Config{
		SQSClient:      c.AWS.sqsClient(cfg),
		DynamoClient:   c.AWS.dynamoClient(cfg),
		S3Client:       c.AWS.s3Client(cfg),
		Environment:    c.Environment,
		CleanResources: c.Clean,
		MaxReceives:    c.MaxReceives,
	}

	if c.Teardown {
		if err := bootstrap.Teardown(ctx, bcfg); err != nil {
			return err
		}
		log.Info().Str("environment", c.Environment).Msg("Resources deleted")
		return nil
	}

	res, err := bootstrap.Bootstrap(ctx, bcfg)
	if err != nil {
		return err
	}

	log.Info().
		Str("table", res.TableName).
		Str("bucket", res.Bucket).
		Str("queue_url", res.QueueURL).
		Str("dlq_url", res.DeadLetterQueueURL).
		Msg("Resources ready")

	fmt.Printf("LOADBOARD_DYNAMODB_TABLE=%s\n", res.TableName)
	fmt.Printf("LOADBOARD_BLOB_BUCKET=%s\n", res.Bucket)
	fmt.Printf("LOADBOARD_NOTIFY_QUEUE_URL=%s\n", res.QueueURL)
	return nil
}
