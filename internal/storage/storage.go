// Package storage copies report variants to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewService),
)

// Object is one file to store.
type Object struct {
	Key         string
	Content     []byte
	ContentType string
	Metadata    map[string]string
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	Key    string
	Bucket string
	ETag   string
	Size   int64
}

// Service provides S3-compatible storage operations. Without S3_*
// configuration it is disabled and uploads fail.
type Service struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

// NewService creates a new storage service
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))
	sc := cfg.Storage
	if !sc.IsConfigured() {
		log.Warn("storage service disabled - no configuration provided")
		return &Service{bucket: sc.Bucket, log: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(sc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			sc.AccessKeyID,
			sc.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := sc.Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if sc.UseSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}

	// Path-style addressing works with both MinIO and S3.
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	log.Info("storage service initialized",
		slog.String("endpoint", endpoint),
		slog.String("bucket", sc.Bucket),
	)

	return &Service{client: client, bucket: sc.Bucket, log: log}, nil
}

// Enabled returns true if the storage service is properly configured
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Bucket returns the target bucket name.
func (s *Service) Bucket() string {
	return s.bucket
}

// Upload writes obj to the bucket, replacing any object with the same key.
func (s *Service) Upload(ctx context.Context, obj Object) (*UploadResult, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("storage service not enabled")
	}

	size := int64(len(obj.Content))
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(obj.Content),
		ContentLength: aws.Int64(size),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if len(obj.Metadata) > 0 {
		input.Metadata = obj.Metadata
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.log.Error("failed to upload object",
			slog.String("key", obj.Key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, "\"")
	}

	s.log.Debug("object uploaded",
		slog.String("key", obj.Key),
		slog.String("bucket", s.bucket),
		slog.Int64("size", size),
	)

	return &UploadResult{
		Key:    obj.Key,
		Bucket: s.bucket,
		ETag:   etag,
		Size:   size,
	}, nil
}

// Key builds an object key from path segments. Empty segments are
// dropped and slashes inside a segment are replaced.
func Key(segments ...string) string {
	clean := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.ReplaceAll(strings.TrimSpace(seg), "/", "_")
		if seg != "" {
			clean = append(clean, seg)
		}
	}
	return path.Join(clean...)
}

// ContentType returns the MIME type for a variant format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "pdf":
		return "application/pdf"
	case "csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
