package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/bootstrap"
	"github.com/wolfeidau/loadboard/internal/fleet"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/logger"
	"github.com/wolfeidau/loadboard/internal/orgs"
	"github.com/wolfeidau/loadboard/internal/server"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"LOADBOARD_LISTEN"`
	Cert   string `help:"path to TLS cert file, TLS is disabled when empty" default:"" env:"LOADBOARD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"LOADBOARD_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"" env:"LOADBOARD_CORS_ORIGINS"`
	MaxBodySize int64    `help:"maximum request body size in bytes" default:"2097152" env:"LOADBOARD_MAX_BODY_SIZE"`
	TrustProxy  bool     `help:"take client addresses from X-Forwarded-For when behind a load balancer" default:"false" env:"LOADBOARD_TRUST_PROXY"`

	// Development and operational modes
	Development      bool    `help:"development mode - auto-setup LocalStack infrastructure" default:"false" env:"LOADBOARD_DEVELOPMENT"`
	DevelopmentClean bool    `help:"clean resources on startup in development mode (deletes all data)" default:"false" env:"LOADBOARD_DEVELOPMENT_CLEAN"`
	Tracing          bool    `help:"enable tracing" default:"false" env:"LOADBOARD_TRACING"`
	SampleRatio      float64 `help:"fraction of traces sampled" default:"1" env:"LOADBOARD_TRACE_SAMPLE_RATIO"`
	Environment      string  `help:"deployment environment recorded on telemetry" default:"" env:"LOADBOARD_ENVIRONMENT"`

	Store  StoreFlags  `embed:"" prefix:"store-"`
	AWS    AWSFlags    `embed:"" prefix:"aws-"`
	Auth   AuthFlags   `embed:"" prefix:"auth-"`
	Blob   BlobFlags   `embed:"" prefix:"blob-"`
	Notify NotifyFlags `embed:"" prefix:"notify-"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "loadboard-server",
			Version:     globals.Version,
			Environment: c.Environment,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Development mode: auto-setup LocalStack infrastructure
	if c.Development {
		if err := c.setupDevelopment(ctx, log); err != nil {
			return err
		}
	}

	for _, v := range []interface{ Validate() error }{&c.Store, &c.Auth, &c.Blob, &c.Notify} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	table, closeTable, err := openTable(ctx, &c.Store, &c.AWS)
	if err != nil {
		return err
	}
	defer closeTable()

	blobs, err := openBlobStore(ctx, &c.Blob, &c.AWS)
	if err != nil {
		return err
	}
	notifier, err := openNotifier(ctx, &c.Notify, &c.AWS)
	if err != nil {
		return err
	}
	verifier, err := c.Auth.verifier()
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	api := server.NewServer(server.Config{
		Loads: loads.NewService(loads.Config{
			Table:      table,
			Recorder:   audit.NewRecorder(table, nil),
			Blobs:      blobs,
			Notifier:   notifier,
			PresignTTL: c.Blob.PresignTTL,
		}),
		Orgs: orgs.NewService(orgs.Config{
			Table:    table,
			Notifier: notifier,
		}),
		Fleet:        fleet.NewService(table, nil),
		AuthFunc:     auth.NewJWTAuthFunc(verifier),
		CORSOrigins:  c.CORSOrigins,
		Tracing:      c.Tracing,
		MaxBodyBytes: c.MaxBodySize,
		TrustProxy:   c.TrustProxy,
	})

	srv := configureHTTPServer(c.Listen, api.Handler(log))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupDevelopment creates the LocalStack resources and points the store,
// blob and notify flags at them.
func (c *ServerCmd) setupDevelopment(ctx context.Context, log zerolog.Logger) error {
	log.Info().Msg("Development mode enabled - setting up LocalStack infrastructure")

	if c.AWS.EndpointURL == "" {
		c.AWS.EndpointURL = "http://localhost:4566"
	}
	cfg, err := c.AWS.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to create local AWS config: %w", err)
	}

	resources, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		SQSClient:      c.AWS.sqsClient(cfg),
		DynamoClient:   c.AWS.dynamoClient(cfg),
		S3Client:       c.AWS.s3Client(cfg),
		Environment:    "dev",
		CleanResources: c.DevelopmentClean,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap development infrastructure: %w", err)
	}

	if c.Store.Type == "" || c.Store.Type == "memory" {
		c.Store.Type = "dynamodb"
	}
	c.Store.DynamoTable = resources.TableName
	c.Blob.Type = "s3"
	c.Blob.Bucket = resources.Bucket
	c.Notify.Type = "sqs"
	c.Notify.QueueURL = resources.QueueURL

	log.Info().
		Str("table", resources.TableName).
		Str("bucket", resources.Bucket).
		Str("queue_url", resources.QueueURL).
		Msg("Development infrastructure ready")

	return nil
}
