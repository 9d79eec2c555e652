package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/payrecon/server/internal/port/outbound"
)

// Config holds S3-compatible object storage configuration.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// objectPutter is the subset of *s3.Client used by the archive.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// auditArchive implements outbound.AuditArchivePort.
type auditArchive struct {
	client objectPutter
	bucket string
	prefix string
}

// NewClient creates an S3 client. A custom endpoint switches to path-style
// addressing for S3-compatible stores.
func NewClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("incomplete object storage configuration")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewAuditArchive creates a new audit archive adapter.
func NewAuditArchive(client objectPutter, bucket, prefix string) outbound.AuditArchivePort {
	return &auditArchive{client: client, bucket: bucket, prefix: prefix}
}

func (a *auditArchive) Put(ctx context.Context, key string, blob []byte) error {
	fullKey := path.Join(a.prefix, key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(fullKey),
		Body:                 bytes.NewReader(blob),
		ContentLength:        aws.Int64(int64(len(blob))),
		ContentType:          aws.String("text/plain"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", fullKey, err)
	}
	return nil
}

// Compile-time check
var _ outbound.AuditArchivePort = (*auditArchive)(nil)
