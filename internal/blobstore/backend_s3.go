package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func init() {
	BackendRegistry["s3"] = func(_ string, cfg map[string]string) (Backend, error) {
		return NewS3Backend(S3Config{
			AccessKeyID:     cfg["access_key_id"],
			SecretAccessKey: cfg["secret_access_key"],
			Region:          cfg["region"],
			Endpoint:        cfg["endpoint"],
			Bucket:          cfg["bucket"],
			Prefix:          cfg["prefix"],
			ForcePathStyle:  cfg["force_path_style"] == "true",
		}), nil
	}
}

// S3Config configures the S3-compatible mirror backend, grounded on
// the teacher's storage.S3Factory (storage/persistence-s3.go).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Backend mirrors blob writes to an S3-compatible bucket. It is
// used only as a secondary backend (see Store.mirrors): a write or
// read failure here is logged and otherwise ignored by the caller.
type S3Backend struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func NewS3Backend(cfg S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

func (b *S3Backend) ensureOpen(ctx context.Context) (*s3.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return b.client, nil
	}
	opts := []func(*config.LoadOptions) error{}
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			b.cfg.AccessKeyID, b.cfg.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}
	b.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.Endpoint)
		}
		o.UsePathStyle = b.cfg.ForcePathStyle
	})
	b.opened = true
	return b.client, nil
}

func (b *S3Backend) key(hash string) string {
	pfx := strings.TrimSuffix(b.cfg.Prefix, "/")
	if pfx == "" {
		return hash
	}
	return pfx + "/" + hash
}

func (b *S3Backend) Put(hash string, mediaType string, data []byte) error {
	ctx := context.Background()
	client, err := b.ensureOpen(ctx)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(hash)),
		Body:   bytes.NewReader(data),
	}
	if mediaType != "" {
		input.ContentType = aws.String(mediaType)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("blobstore: s3 put %s: %w", hash, err)
	}
	return nil
}

func (b *S3Backend) Get(hash string) ([]byte, error) {
	ctx := context.Background()
	client, err := b.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(hash)),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: s3 get %s: %w", hash, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: s3 read body %s: %w", hash, err)
	}
	return data, nil
}

func (b *S3Backend) Delete(hash string) error {
	ctx := context.Background()
	client, err := b.ensureOpen(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(hash)),
	}); err != nil {
		return fmt.Errorf("blobstore: s3 delete %s: %w", hash, err)
	}
	return nil
}
