// Package s3 stores original resume files in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

// Store implements domain.BlobStore over the S3 API with path-style addressing.
type Store struct {
	client     *s3.Client
	bucket     string
	endpoint   string
	publicBase string
}

// New builds a Store from configuration. Fails when storage is not configured.
func New(ctx context.Context, cfg config.Config) (*Store, error) {
	if !cfg.StorageEnabled() {
		return nil, fmt.Errorf("op=s3.New: %w: S3_ENDPOINT and S3_BUCKET are required", domain.ErrInvalidArgument)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	)
	if err != nil {
		return nil, fmt.Errorf("op=s3.New: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &Store{
		client:     client,
		bucket:     cfg.S3Bucket,
		endpoint:   strings.TrimRight(cfg.S3Endpoint, "/"),
		publicBase: strings.TrimRight(cfg.S3PublicBaseURL, "/"),
	}, nil
}

// Put uploads data under key and returns its URL.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("op=s3.Put: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	obsctx.LoggerFromContext(ctx).Debug("blob stored", "bucket", s.bucket, "key", key, "bytes", len(data))
	return s.URL(key), nil
}

// Delete removes the object behind fileURL; missing objects are not an error.
func (s *Store) Delete(ctx context.Context, fileURL string) error {
	key, ok := s.KeyFromURL(fileURL)
	if !ok {
		return fmt.Errorf("op=s3.Delete: %w: url %q is not in bucket %s", domain.ErrInvalidArgument, fileURL, s.bucket)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("op=s3.Delete: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Ping checks the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("op=s3.Ping: %w", err)
	}
	return nil
}

// URL returns the address recorded for key: the public base when configured, else the path-style endpoint URL.
func (s *Store) URL(key string) string {
	escaped := escapeKey(key)
	if s.publicBase != "" {
		return s.publicBase + "/" + escaped
	}
	return s.endpoint + "/" + s.bucket + "/" + escaped
}

// KeyFromURL reverses URL.
func (s *Store) KeyFromURL(fileURL string) (string, bool) {
	prefixes := []string{s.endpoint + "/" + s.bucket + "/"}
	if s.publicBase != "" {
		prefixes = append([]string{s.publicBase + "/"}, prefixes...)
	}
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(fileURL, p); ok && rest != "" {
			key, err := url.PathUnescape(rest)
			if err != nil {
				return "", false
			}
			return key, true
		}
	}
	return "", false
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ domain.BlobStore = (*Store)(nil)
