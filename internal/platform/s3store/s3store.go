// Package s3store holds claim documents in S3 and hands out time-limited
// presigned URLs so document bytes never transit the API.
package s3store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadAPI is the subset of the S3 client used for direct uploads.
type UploadAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the subset of the S3 presign client used for signed URLs.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ UploadAPI  = (*s3.Client)(nil)
	_ PresignAPI = (*s3.PresignClient)(nil)
)

// DocumentKey derives the canonical object key for a claim's document. This
// is the only place the layout is spelled out.
func DocumentKey(claimID string) string {
	return fmt.Sprintf("claims/%s/document.pdf", claimID)
}

// Store wraps one bucket with upload and presign operations.
type Store struct {
	client  UploadAPI
	presign PresignAPI
	bucket  string
}

func New(client UploadAPI, presign PresignAPI, bucket string) *Store {
	return &Store{client: client, presign: presign, bucket: bucket}
}

// NewFromClient builds a Store and its presign client from one S3 client.
func NewFromClient(client *s3.Client, bucket string) *Store {
	return New(client, s3.NewPresignClient(client), bucket)
}

// Upload writes the object directly. Failures propagate to the caller; a
// claim document write is a required write, not best effort.
func (s *Store) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PresignedGet returns a download URL valid for ttl.
func (s *Store) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignedPut returns an upload URL valid for ttl. The client must send the
// same content type when it PUTs.
func (s *Store) PresignedPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}
