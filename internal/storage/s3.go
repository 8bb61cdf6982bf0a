package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/newsgraph/internal/config"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const failurePrefix = "failed-extractions/"

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithBaseEndpoint(cfg.AWSEndpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKey,
			cfg.AWSSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// FailureArchive stores model answers that could not be parsed as a graph, one
// object per failure under failed-extractions/<topic>/. It satisfies
// graph.FailureArchive.
type FailureArchive struct {
	client s3API
	bucket string
}

func NewFailureArchive(client *s3.Client, bucket string) *FailureArchive {
	return &FailureArchive{client: client, bucket: bucket}
}

// FailurePrefix returns the object prefix for all failures of topic, or of
// every topic when topic is empty.
func FailurePrefix(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return failurePrefix
	}
	k := store.CacheKey{Topic: topic}
	return failurePrefix + url.PathEscape(k.TopicKey()) + "/"
}

func (a *FailureArchive) ArchiveFailure(ctx context.Context, key store.CacheKey, raw string) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate object id: %w", err)
	}
	objectKey := FailurePrefix(key.Topic) + id + ".txt"

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(raw),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"topic":      key.Topic,
			"language":   key.Language,
			"time-range": key.TimeRange,
			"depth":      strconv.Itoa(key.Depth),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload failure to S3: %w", err)
	}
	return nil
}

// GetFailure returns the archived answer stored under objectKey.
func (a *FailureArchive) GetFailure(ctx context.Context, objectKey string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return buf.Bytes(), nil
}

// ListFailures returns the object keys of archived failures for topic. An
// empty topic lists every failure.
func (a *FailureArchive) ListFailures(ctx context.Context, topic string) ([]string, error) {
	prefix := FailurePrefix(topic)

	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := a.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}
