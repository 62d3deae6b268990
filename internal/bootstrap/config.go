package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DefaultMaxReceives is how many times the mailer may fail a notification
// before it is moved to the dead letter queue.
const DefaultMaxReceives = 5

// Config holds the clients and naming for one environment.
type Config struct {
	DynamoClient *dynamodb.Client
	SQSClient    *sqs.Client
	S3Client     *s3.Client

	// Environment prefixes every resource name, e.g. "dev" or "test".
	Environment string

	// CleanResources deletes existing resources, and their data, before
	// creating them. Otherwise existing resources are reused.
	CleanResources bool

	// MaxReceives is the notification queue redrive threshold.
	MaxReceives int
}

func (c *Config) validate() error {
	if c.DynamoClient == nil || c.SQSClient == nil || c.S3Client == nil {
		return fmt.Errorf("DynamoDB, SQS and S3 clients are required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.MaxReceives <= 0 {
		c.MaxReceives = DefaultMaxReceives
	}
	return nil
}

// Resources names what Bootstrap created.
type Resources struct {
	TableName          string
	Bucket             string
	QueueURL           string
	DeadLetterQueueURL string
}

// TableName is the single table name for an environment.
func TableName(env string) string { return env + "_loadboard" }

// QueueName is the notification queue name for an environment.
func QueueName(env string) string { return env + "-notifications" }

// DeadLetterQueueName holds notifications the mailer gave up on.
func DeadLetterQueueName(env string) string { return QueueName(env) + "-dlq" }

// BucketName is the signature bucket name for an environment.
func BucketName(env string) string { return env + "-loadboard-signatures" }
