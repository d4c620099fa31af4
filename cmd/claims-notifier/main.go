// Package main bridges S3 upload events to the claim-analysis queue. It runs
// as a Lambda function subscribed to ObjectCreated notifications on the
// document bucket.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/claims/claims/internal/platform/awsutil"
	"github.com/claims/claims/internal/platform/notify"
)

// documentPrefix is the key space the API server writes claim documents
// under. Anything else in the bucket is not ours to announce.
const documentPrefix = "claims/"

// App holds the queue publisher for the life of the Lambda container.
type App struct {
	publisher *notify.Publisher
	logger    zerolog.Logger
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	queueURL := os.Getenv("SQS_QUEUE_URL")
	if queueURL == "" {
		logger.Fatal().Msg("SQS_QUEUE_URL is not set")
	}

	ctx := context.Background()
	awsCfg, err := awsutil.Load(ctx, os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS configuration")
	}

	app := &App{
		publisher: notify.NewPublisher(sqs.NewFromConfig(awsCfg), queueURL),
		logger:    logger,
	}
	lambda.Start(app.handler)
}

// handler processes every record before reporting failures, so one bad
// object cannot starve the rest of the batch. A non-nil return makes Lambda
// redeliver the event.
func (a *App) handler(ctx context.Context, ev events.S3Event) error {
	var failed int
	for _, rec := range ev.Records {
		if err := a.processRecord(ctx, rec); err != nil {
			a.logger.Error().Err(err).Str("key", rec.S3.Object.Key).Msg("failed to queue analysis request")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(ev.Records))
	}
	return nil
}

func (a *App) processRecord(ctx context.Context, record events.S3EventRecord) error {
	bucket := record.S3.Bucket.Name

	// S3 delivers URL-encoded keys.
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return fmt.Errorf("bad key %q: %w", record.S3.Object.Key, err)
	}

	if !strings.HasPrefix(key, documentPrefix) {
		a.logger.Debug().Str("key", key).Msg("skipping object outside document prefix")
		return nil
	}

	if err := a.publisher.AnalyzeDocument(ctx, bucket, key); err != nil {
		return err
	}

	a.logger.Info().Str("bucket", bucket).Str("key", key).Msg("analysis request queued")
	return nil
}
