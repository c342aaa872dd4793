package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket and optional alternate endpoint an S3Engine
// talks to, mirroring the teacher's S3Factory field set minus the fields
// sparrow never needs (multi-region failover, path-style toggle is kept
// since MinIO-style test doubles rely on it).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // empty uses the default AWS endpoint
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Engine stores blobs as objects under Prefix in one bucket. The client
// is built lazily on first use, exactly like the teacher's S3Storage
// ensureOpen, so a head or scanner that never touches cold storage never
// pays for a credential lookup.
type S3Engine struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Engine returns an Engine for cfg. The underlying client is not
// constructed until the first call that needs it.
func NewS3Engine(cfg S3Config) *S3Engine {
	return &S3Engine{cfg: cfg}
}

func (e *S3Engine) ensureOpen(ctx context.Context) (*s3.Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(e.cfg.Region),
	}
	if e.cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(e.cfg.AccessKeyID, e.cfg.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: load aws config: %w", err)
	}
	e.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if e.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.Endpoint)
		}
		o.UsePathStyle = e.cfg.ForcePathStyle
	})
	return e.client, nil
}

func (e *S3Engine) key(name string) string {
	if e.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(e.cfg.Prefix, "/") + "/" + name
}

// S3 has no append: every WriteBlob replaces the whole object, same
// limitation the teacher documents for its S3Storage.
func (e *S3Engine) WriteBlob(name string, data []byte) error {
	ctx := context.Background()
	client, err := e.ensureOpen(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(e.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("transport: s3 put %s: %w", name, err)
	}
	return nil
}

func (e *S3Engine) ReadBlob(name string) ([]byte, error) {
	ctx := context.Background()
	client, err := e.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(e.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("transport: s3 get %s: %w", name, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: s3 read body %s: %w", name, err)
	}
	return data, nil
}

func (e *S3Engine) RemoveBlob(name string) error {
	ctx := context.Background()
	client, err := e.ensureOpen(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(e.key(name)),
	})
	if err != nil {
		return fmt.Errorf("transport: s3 delete %s: %w", name, err)
	}
	return nil
}

func (e *S3Engine) List(prefix string) ([]string, error) {
	ctx := context.Background()
	client, err := e.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	var token *string
	full := e.key(prefix)
	for {
		page, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.cfg.Bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("transport: s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), e.key("")))
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}
