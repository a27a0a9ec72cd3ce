package evidence

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// S3Store stores evidence in an S3-compatible bucket.
type S3Store struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
	logger  *zap.Logger
}

// S3Options configures the S3 evidence backend.
type S3Options struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	Bucket       string
	UsePathStyle bool
}

// NewS3Store validates configuration and constructs the client once; the
// store is reused for the process lifetime.
func NewS3Store(opts S3Options, logger *zap.Logger) (*S3Store, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("new s3 store: %w", ErrNotConfigured)
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Store{
		bucket:  opts.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
		logger:  logger,
	}, nil
}

// Upload streams content to the bucket under an org-namespaced key.
func (s *S3Store) Upload(ctx context.Context, orgID uuid.UUID, objectName string, content io.Reader) (string, error) {
	key := ObjectKey(orgID, objectName)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Debug("evidence uploaded",
		zap.String("key", key),
		zap.String("org_id", orgID.String()))
	return key, nil
}

// Delete removes an object. S3 DeleteObject succeeds for missing keys, so
// deletion is naturally idempotent.
func (s *S3Store) Delete(ctx context.Context, objectName string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", objectName, err)
	}
	return nil
}

// SignedURL presigns a GET for the object.
func (s *S3Store) SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectName),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectName, err)
	}
	return req.URL, nil
}
