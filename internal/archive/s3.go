package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the subset of the S3 API the archiver needs.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes replays as JSON objects to an S3 bucket.
type S3Archiver struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver targeting the given bucket. Keys
// are written under prefix, e.g. "replays/".
func NewS3Archiver(client S3Client, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads the replay as a JSON object keyed by game id.
func (a *S3Archiver) Archive(ctx context.Context, replay Replay) error {
	body, err := json.Marshal(replay)
	if err != nil {
		return fmt.Errorf("archive: marshal replay: %w", err)
	}

	key := fmt.Sprintf("%sgame-%d.json", a.prefix, replay.GameID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put replay %s: %w", key, err)
	}
	return nil
}
