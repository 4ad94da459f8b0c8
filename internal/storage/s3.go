package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"talk2data/internal/domain"
)

var _ domain.SchemaStore = (*S3Store)(nil)

// S3Config configures an S3-compatible schema bucket.
type S3Config struct {
	KeyID    string
	Secret   string
	Endpoint string // host or URL; empty uses AWS
	Region   string
	Bucket   string
	Prefix   string
}

// S3Store keeps schema documents in an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a store using static credentials and path-style
// addressing so that MinIO and Hetzner endpoints work.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.KeyID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("s3 key id and secret are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.Secret, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return NewS3StoreWithClient(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads the raw document.
func (s *S3Store) Put(ctx context.Context, user, name string, raw []byte) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(s.prefix, user, name)),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return wrapOp("put", user, name, err)
	}
	return nil
}

// Get downloads the raw document.
func (s *S3Store) Get(ctx context.Context, user, name string) ([]byte, error) {
	if err := validateKey(user, name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, user, name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(user, name)
		}
		return nil, wrapOp("get", user, name, err)
	}
	defer out.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapOp("read", user, name, err)
	}
	return raw, nil
}

// List returns the user's schema names.
func (s *S3Store) List(ctx context.Context, user string) ([]string, error) {
	if err := validateKey(user, "x"); err != nil {
		return nil, err
	}
	listPrefix := userPrefix(s.prefix, user)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list schemas for %s: %w", user, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return schemaNames(keys, listPrefix), nil
}

// Delete removes the document. S3 deletes are idempotent, so existence is
// checked first to report NotFound.
func (s *S3Store) Delete(ctx context.Context, user, name string) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	key := aws.String(objectKey(s.prefix, user, name))
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		if isS3NotFound(err) {
			return notFound(user, name)
		}
		return wrapOp("stat", user, name, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		return wrapOp("delete", user, name, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
