// Package notify publishes document events to the claim-analysis queue. The
// API server never sends these; only the notifier binary does, after S3
// reports a finished upload.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ActionAnalyzeClaim asks the downstream pipeline to analyze an uploaded
// claim document.
const ActionAnalyzeClaim = "ANALYZE_CLAIM"

// API is the subset of the SQS client used by the publisher.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ API = (*sqs.Client)(nil)

// Message is the queue payload consumed by the analysis pipeline.
type Message struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// Publisher sends messages to one queue.
type Publisher struct {
	client   API
	queueURL string
}

func NewPublisher(client API, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// AnalyzeDocument enqueues an analysis request for an uploaded object.
func (p *Publisher) AnalyzeDocument(ctx context.Context, bucket, key string) error {
	msg := Message{
		Bucket:    bucket,
		Key:       key,
		Action:    ActionAnalyzeClaim,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send message for %s/%s: %w", bucket, key, err)
	}
	return nil
}
