// Package documents uploads payment proofs and invoices to S3 compatible
// object storage and returns their public URLs.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/feedflow/feedflow/internal/shared"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("documents: object storage not configured")

// MaxSize bounds an uploaded document.
const MaxSize = 10 << 20

// Options configures the S3 client.
type Options struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

// ObjectPutter is the subset of the S3 client used by Store.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes objects under a key prefix.
type Store struct {
	client     ObjectPutter
	bucket     string
	publicBase string
	prefix     string
}

// New builds an S3 backed store. Endpoint may point at R2 or MinIO.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" || opts.PublicURL == "" {
		return nil, ErrDisabled
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("documents: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts.Bucket, opts.PublicURL), nil
}

// NewWithClient builds a store around an existing client.
func NewWithClient(client ObjectPutter, bucket, publicBase string) *Store {
	return &Store{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		prefix:     "proofs",
	}
}

// Put uploads blob and returns the retrievable URL. The blob is never inspected
// beyond sniffing a content type when none is given.
func (s *Store) Put(ctx context.Context, filename, contentType string, blob []byte) (string, error) {
	if s == nil {
		return "", ErrDisabled
	}
	if len(blob) == 0 {
		return "", shared.Validationf("document is empty")
	}
	if len(blob) > MaxSize {
		return "", shared.Validationf("document exceeds %d bytes", MaxSize)
	}
	base := sanitize(filename)
	if base == "" {
		return "", shared.Validationf("filename is required")
	}
	if contentType == "" {
		contentType = http.DetectContentType(blob)
	}
	key := fmt.Sprintf("%s/%s-%s", s.prefix, uuid.NewString(), base)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("documents: put %s: %w", key, err)
	}
	return s.publicBase + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}

func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
