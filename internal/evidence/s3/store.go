// Package s3 stores evidence in an S3-compatible bucket (AWS S3 or MinIO) and
// serves downloads through presigned URLs.
package s3

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"safetyaudit/internal/evidence"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/requestcontext"
)

const (
	metaFileName   = "filename"
	metaShareToken = "share-token"
	metaCollection = "collection"
	metaParentID   = "parent-id"

	defaultPresignTTL = 15 * time.Minute
)

// Config holds explicit construction parameters. Empty credentials fall back
// to the default AWS chain.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

type Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	logger     *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithPresignTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// New builds the client from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewWithClient(client, cfg.Bucket, append([]Option{WithPresignTTL(cfg.PresignTTL)}, opts...)...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket string, opts ...Option) *Store {
	s := &Store{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     bucket,
		presignTTL: defaultPresignTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Upload(ctx context.Context, file evidence.File, uctx evidence.UploadContext) (evidence.Ref, error) {
	if err := file.Validate(uctx); err != nil {
		return evidence.Ref{}, err
	}
	data, err := evidence.ReadBody(file)
	if err != nil {
		return evidence.Ref{}, err
	}

	ref := evidence.Ref{
		ID:          uuid.NewString(),
		ShareToken:  uuid.NewString(),
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        int64(len(data)),
		CreatedAt:   requestcontext.Now(ctx),
	}
	key := evidence.ObjectKey(uctx.OwnerID, ref.ID)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(ref.Size),
		Metadata: map[string]string{
			metaFileName:   url.QueryEscape(file.Name),
			metaShareToken: ref.ShareToken,
			metaCollection: uctx.Collection,
			metaParentID:   uctx.ParentID,
		},
	}
	if file.ContentType != "" {
		input.ContentType = aws.String(file.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.ErrorContext(ctx, "evidence upload to bucket failed",
			"bucket", s.bucket,
			"key", key,
			"error", err,
		)
		return evidence.Ref{}, dErrors.Wrap(err, dErrors.CodeDependency, "evidence store unavailable")
	}
	return ref, nil
}

// ResolveDownloadURL confirms the object exists for the owner before signing.
func (s *Store) ResolveDownloadURL(ctx context.Context, ownerID id.OwnerID, evidenceID string) (string, error) {
	if ownerID.IsNil() || evidenceID == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "evidence not found")
	}
	key := evidence.ObjectKey(ownerID, evidenceID)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		if isNotFound(err) {
			return "", dErrors.New(dErrors.CodeNotFound, "evidence not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeDependency, "evidence store unavailable")
	}
	out, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		func(po *s3.PresignOptions) { po.Expires = s.presignTTL },
	)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign download url")
	}
	return out.URL, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
