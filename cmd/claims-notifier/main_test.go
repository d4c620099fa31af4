package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/claims/claims/internal/platform/notify"
)

type fakeSQS struct {
	sent []sqs.SendMessageInput
	err  error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, *params)
	return &sqs.SendMessageOutput{}, nil
}

func newTestApp() (*App, *fakeSQS) {
	queue := &fakeSQS{}
	app := &App{
		publisher: notify.NewPublisher(queue, "https://sqs.test/claims-analysis"),
		logger:    zerolog.Nop(),
	}
	return app, queue
}

func s3Event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		ev.Records = append(ev.Records, events.S3EventRecord{
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: "insurance-claim-documents"},
				Object: events.S3Object{Key: k},
			},
		})
	}
	return ev
}

func TestHandler_PublishesClaimDocument(t *testing.T) {
	app, queue := newTestApp()

	err := app.handler(context.Background(), s3Event("claims/42cc8766/document.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(queue.sent))
	}
	if got := *queue.sent[0].QueueUrl; got != "https://sqs.test/claims-analysis" {
		t.Errorf("queue URL = %q", got)
	}

	var msg notify.Message
	if err := json.Unmarshal([]byte(*queue.sent[0].MessageBody), &msg); err != nil {
		t.Fatalf("message body is not JSON: %v", err)
	}
	if msg.Bucket != "insurance-claim-documents" {
		t.Errorf("bucket = %q", msg.Bucket)
	}
	if msg.Key != "claims/42cc8766/document.pdf" {
		t.Errorf("key = %q", msg.Key)
	}
	if msg.Action != notify.ActionAnalyzeClaim {
		t.Errorf("action = %q, want %q", msg.Action, notify.ActionAnalyzeClaim)
	}
	if msg.Timestamp == "" {
		t.Error("timestamp is empty")
	}
}

func TestHandler_SkipsForeignKeys(t *testing.T) {
	app, queue := newTestApp()

	err := app.handler(context.Background(), s3Event("logs/2026/08/access.log", "backups/table.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.sent) != 0 {
		t.Errorf("sent %d messages for foreign keys, want 0", len(queue.sent))
	}
}

func TestHandler_DecodesEscapedKey(t *testing.T) {
	app, queue := newTestApp()

	// S3 event notifications deliver query-encoded keys.
	err := app.handler(context.Background(), s3Event("claims/42cc8766/claim+form.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(queue.sent))
	}
	var msg notify.Message
	if err := json.Unmarshal([]byte(*queue.sent[0].MessageBody), &msg); err != nil {
		t.Fatalf("message body is not JSON: %v", err)
	}
	if msg.Key != "claims/42cc8766/claim form.pdf" {
		t.Errorf("key = %q, want decoded form", msg.Key)
	}
}

func TestHandler_PublishFailureReturnsError(t *testing.T) {
	app, queue := newTestApp()
	queue.err = errors.New("queue unreachable")

	err := app.handler(context.Background(), s3Event(
		"claims/a/document.pdf",
		"claims/b/document.pdf",
	))
	if err == nil {
		t.Fatal("expected an error so Lambda retries delivery")
	}
}

func TestHandler_BadRecordDoesNotStarveBatch(t *testing.T) {
	app, queue := newTestApp()

	err := app.handler(context.Background(), s3Event(
		"claims/%zz/document.pdf",
		"claims/42cc8766/document.pdf",
	))
	if err == nil {
		t.Fatal("expected an error for the undecodable key")
	}
	if len(queue.sent) != 1 {
		t.Errorf("sent %d messages, want 1 despite the bad record", len(queue.sent))
	}
}
