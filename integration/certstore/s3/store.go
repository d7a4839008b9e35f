package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/certward/core/certstore"
)

// Compile-time check that Store implements the certstore contract.
var _ certstore.Store = (*Store)(nil)

// Client defines the S3 operations the store uses. Satisfied by
// *s3.Client; narrow so tests can substitute a mock.
type Client interface {
	GetObject(ctx context.Context, params *s3aws.GetObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3aws.DeleteObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error)
}

// Config contains S3 connection settings. Endpoint and ForcePathStyle
// support S3-compatible services like MinIO.
type Config struct {
	Bucket         string `env:"CERT_S3_BUCKET"`
	Region         string `env:"CERT_S3_REGION"`
	AccessKeyID    string `env:"CERT_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"CERT_S3_SECRET_KEY"`
	Endpoint       string `env:"CERT_S3_ENDPOINT"`
	Prefix         string `env:"CERT_S3_PREFIX" envDefault:"certs/"`
	ForcePathStyle bool   `env:"CERT_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// Store persists certificate/key pairs as a pair of S3 objects per
// domain: <prefix><domain>.crt and <prefix><domain>.key.
type Store struct {
	client Client
	bucket string
	prefix string
}

// Option configures a Store.
type Option func(*options)

type options struct {
	client          Client
	httpClient      *http.Client
	s3ConfigOptions []func(*config.LoadOptions) error
}

// WithClient sets a pre-configured S3 client. Primarily for tests.
func WithClient(client Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithConfigOption adds a custom AWS config option.
func WithConfigOption(option func(*config.LoadOptions) error) Option {
	return func(o *options) {
		o.s3ConfigOptions = append(o.s3ConfigOptions, option)
	}
}

// New creates an S3-backed certificate store.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 certstore: bucket is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		if cfg.Region == "" {
			return nil, errors.New("s3 certstore: region is required")
		}

		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if o.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(o.httpClient))
		}
		awsOptions = append(awsOptions, o.s3ConfigOptions...)

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("s3 certstore: load AWS config: %w", err)
		}

		client = s3aws.NewFromConfig(awsConfig, func(so *s3aws.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Read fetches the certificate and key objects for a domain. A missing
// object on either side reports certstore.ErrNotFound so callers treat
// partial material as absent.
func (s *Store) Read(ctx context.Context, domain string) ([]byte, []byte, error) {
	domain = strings.ToLower(domain)

	certPEM, err := s.getObject(ctx, s.certKey(domain))
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := s.getObject(ctx, s.keyKey(domain))
	if err != nil {
		return nil, nil, err
	}
	return certPEM, keyPEM, nil
}

// Write stores the certificate and key objects for a domain. The key is
// written first so a crash between the two writes never leaves a
// certificate without its key.
func (s *Store) Write(ctx context.Context, domain string, certPEM, keyPEM []byte) error {
	domain = strings.ToLower(domain)

	if err := s.putObject(ctx, s.keyKey(domain), keyPEM); err != nil {
		return err
	}
	return s.putObject(ctx, s.certKey(domain), certPEM)
}

// Delete removes both objects for a domain. Missing objects are a no-op.
func (s *Store) Delete(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	for _, key := range []string{s.certKey(domain), s.keyKey(domain)} {
		_, err := s.client.DeleteObject(ctx, &s3aws.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classifyError(err, "delete")
		}
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyError(err, "read")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 certstore: read object body: %w", err)
	}
	return data, nil
}

func (s *Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-pem-file"),
	})
	if err != nil {
		return classifyError(err, "write")
	}
	return nil
}

func (s *Store) certKey(domain string) string {
	return s.prefix + domain + ".crt"
}

func (s *Store) keyKey(domain string) string {
	return s.prefix + domain + ".key"
}

// classifyError maps S3 failures onto the certstore error contract.
func classifyError(err error, operation string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", certstore.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return fmt.Errorf("%w: %s", certstore.ErrNotFound, err)
	}

	return fmt.Errorf("s3 certstore: %s: %w", operation, err)
}
