package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/blob"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/store"
	awsstore "github.com/wolfeidau/loadboard/internal/store/aws"
	memorystore "github.com/wolfeidau/loadboard/internal/store/memory"
	postgresstore "github.com/wolfeidau/loadboard/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// AWSFlags configures the SDK clients shared by the DynamoDB, S3 and SQS
// backends.
type AWSFlags struct {
	Region      string `help:"AWS region" default:"" env:"AWS_REGION"`
	EndpointURL string `help:"endpoint URL override for all AWS services (for LocalStack)" default:"" env:"LOADBOARD_AWS_ENDPOINT_URL"`
}

// load returns the SDK config. An endpoint override implies LocalStack and
// static test credentials.
func (f *AWSFlags) load(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if f.Region != "" {
		opts = append(opts, config.WithRegion(f.Region))
	}
	if f.EndpointURL != "" {
		if f.Region == "" {
			opts = append(opts, config.WithRegion("us-east-1"))
		}
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func (f *AWSFlags) dynamoClient(cfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if f.EndpointURL != "" {
			o.BaseEndpoint = aws.String(f.EndpointURL)
		}
	})
}

func (f *AWSFlags) s3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if f.EndpointURL != "" {
			o.BaseEndpoint = aws.String(f.EndpointURL)
			o.UsePathStyle = true
		}
	})
}

func (f *AWSFlags) sqsClient(cfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if f.EndpointURL != "" {
			o.BaseEndpoint = aws.String(f.EndpointURL)
		}
	})
}

// StoreFlags selects and configures the table backend.
type StoreFlags struct {
	Type        string             `help:"store type (memory, dynamodb, or postgres)" default:"memory" env:"LOADBOARD_STORE_TYPE" enum:"memory,dynamodb,postgres"`
	DynamoTable string             `help:"DynamoDB table name" default:"" env:"LOADBOARD_DYNAMODB_TABLE"`
	Postgres    PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (s *StoreFlags) Validate() error {
	switch s.Type {
	case "dynamodb":
		if s.DynamoTable == "" {
			return errors.New("DynamoDB table name is required (--store-dynamo-table or LOADBOARD_DYNAMODB_TABLE)")
		}
	case "postgres":
		return s.Postgres.Validate()
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	SlowQuery       time.Duration `help:"log queries slower than this, zero disables" default:"0s" env:"LOADBOARD_POSTGRES_SLOW_QUERY"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"LOADBOARD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--store-postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// openTable creates the configured table. The returned close func releases
// any connections.
func openTable(ctx context.Context, flags *StoreFlags, awsFlags *AWSFlags) (store.Table, func(), error) {
	switch flags.Type {
	case "dynamodb":
		cfg, err := awsFlags.load(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		log.Info().Str("table", flags.DynamoTable).Msg("Using DynamoDB store")
		return awsstore.NewTable(awsFlags.dynamoClient(cfg), flags.DynamoTable), func() {}, nil

	case "postgres":
		pool, err := postgresstore.NewPool(ctx, postgresstore.PoolConfig{
			ConnString:      flags.Postgres.ConnString,
			MaxConns:        flags.Postgres.MaxConns,
			MinConns:        flags.Postgres.MinConns,
			MaxConnLifetime: flags.Postgres.MaxConnLifetime,
			MaxConnIdleTime: flags.Postgres.MaxConnIdleTime,
			SlowQuery:       flags.Postgres.SlowQuery,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if flags.Postgres.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}
		log.Info().Msg("Using PostgreSQL store")
		return postgresstore.NewTable(pool), pool.Close, nil

	default:
		log.Info().Msg("Using in-memory store")
		return memorystore.NewTable(), func() {}, nil
	}
}

// AuthFlags configures how bearer tokens are verified.
type AuthFlags struct {
	Mode          string `help:"token verification mode (static or jwks)" default:"static" env:"LOADBOARD_AUTH_MODE" enum:"static,jwks"`
	PublicKeyFile string `help:"PEM encoded ECDSA public key for static verification" default:"" env:"LOADBOARD_AUTH_PUBLIC_KEY_FILE"`
	JWKSURL       string `help:"JWKS URL of the identity provider" default:"" env:"LOADBOARD_AUTH_JWKS_URL"`
	Issuer        string `help:"expected token issuer" default:"" env:"LOADBOARD_AUTH_ISSUER"`
	Audience      string `help:"expected token audience (jwks mode)" default:"" env:"LOADBOARD_AUTH_AUDIENCE"`
}

func (a *AuthFlags) Validate() error {
	switch a.Mode {
	case "jwks":
		if a.JWKSURL == "" {
			return errors.New("JWKS URL is required in jwks mode (--auth-jwks-url or LOADBOARD_AUTH_JWKS_URL)")
		}
	default:
		if a.PublicKeyFile == "" {
			return errors.New("public key file is required in static mode (--auth-public-key-file or LOADBOARD_AUTH_PUBLIC_KEY_FILE)")
		}
	}
	return nil
}

func (a *AuthFlags) verifier() (auth.Verifier, error) {
	if a.Mode == "jwks" {
		return auth.NewJWKSVerifier(a.JWKSURL, a.Issuer, a.Audience), nil
	}
	pem, err := os.ReadFile(a.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return auth.NewStaticKeyVerifier(string(pem), a.Issuer)
}

// BlobFlags selects where signature images are kept.
type BlobFlags struct {
	Type       string        `help:"blob store type (memory or s3)" default:"memory" env:"LOADBOARD_BLOB_TYPE" enum:"memory,s3"`
	Bucket     string        `help:"S3 bucket for signature images" default:"" env:"LOADBOARD_BLOB_BUCKET"`
	PresignTTL time.Duration `help:"lifetime of presigned signature URLs" default:"15m" env:"LOADBOARD_BLOB_PRESIGN_TTL"`
}

func (b *BlobFlags) Validate() error {
	if b.Type == "s3" && b.Bucket == "" {
		return errors.New("S3 bucket is required (--blob-bucket or LOADBOARD_BLOB_BUCKET)")
	}
	return nil
}

// NotifyFlags selects how notifications are delivered.
type NotifyFlags struct {
	Type     string `help:"notifier type (log or sqs)" default:"log" env:"LOADBOARD_NOTIFY_TYPE" enum:"log,sqs"`
	QueueURL string `help:"SQS queue URL consumed by the mailer" default:"" env:"LOADBOARD_NOTIFY_QUEUE_URL"`
}

func (n *NotifyFlags) Validate() error {
	if n.Type == "sqs" && n.QueueURL == "" {
		return errors.New("SQS queue URL is required (--notify-queue-url or LOADBOARD_NOTIFY_QUEUE_URL)")
	}
	return nil
}

func openBlobStore(ctx context.Context, flags *BlobFlags, awsFlags *AWSFlags) (blob.Store, error) {
	if flags.Type != "s3" {
		log.Info().Msg("Using in-memory blob store")
		return blob.NewMemoryStore(), nil
	}
	cfg, err := awsFlags.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Info().Str("bucket", flags.Bucket).Msg("Using S3 blob store")
	return blob.NewS3Store(awsFlags.s3Client(cfg), flags.Bucket), nil
}

func openNotifier(ctx context.Context, flags *NotifyFlags, awsFlags *AWSFlags) (notify.Notifier, error) {
	if flags.Type != "sqs" {
		return notify.LogNotifier{}, nil
	}
	cfg, err := awsFlags.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Info().Str("queue_url", flags.QueueURL).Msg("Using SQS notifier")
	return notify.NewSQSNotifier(awsFlags.sqsClient(cfg), flags.QueueURL), nil
}
