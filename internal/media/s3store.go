// Package media stores vault images in an S3-compatible bucket.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFolder          = "vault"
	defaultUploadURLTTL    = 15 * time.Minute
	defaultSignedURLTTL    = time.Hour
	defaultDeleteWorkers   = 4
	maxSignedURLTTL        = 7 * 24 * time.Hour
	thumbnailTransformFlag = "tr"
)

var (
	errMissingBucket = errors.New("media: bucket is required")
	errMissingRegion = errors.New("media: region is required")
)

// Config describes the bucket and public URL layout of the media store.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// URLEndpoint is the public CDN origin fronting the bucket. Empty means direct bucket URLs.
	URLEndpoint string
	Folder      string
	// ThumbnailTransform is appended as ?tr=<value> to build thumbnail URLs on the CDN.
	ThumbnailTransform string
	UploadURLTTL       time.Duration
	SignedURLTTL       time.Duration
	DeleteWorkers      int
	IDProvider         vault.IDProvider
	Clock              func() time.Time
	Logger             *zap.Logger
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// UploadAuthorization lets a client PUT one object directly to the bucket.
type UploadAuthorization struct {
	FileID       string
	UploadURL    string
	Method       string
	Headers      http.Header
	URL          string
	ThumbnailURL string
	ExpiresAt    time.Time
}

// StoredObject describes an object written through Upload.
type StoredObject struct {
	FileID       string
	URL          string
	ThumbnailURL string
	Metadata     Metadata
}

// DeleteOutcome is the per-file result of DeleteMany.
type DeleteOutcome struct {
	FileID string
	Err    error
}

// S3Store implements the media store on top of the AWS SDK.
type S3Store struct {
	cfg       Config
	objects   objectAPI
	presigner presignAPI
	logger    *zap.Logger
}

// NewS3Store loads static credentials and builds the S3 clients.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errMissingBucket
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errMissingRegion
	}
	options := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(cfg, client, s3.NewPresignClient(client)), nil
}

func newS3Store(cfg Config, objects objectAPI, presigner presignAPI) *S3Store {
	if strings.Trim(cfg.Folder, "/ ") == "" {
		cfg.Folder = defaultFolder
	}
	cfg.Folder = strings.Trim(cfg.Folder, "/ ")
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = defaultUploadURLTTL
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	if cfg.DeleteWorkers <= 0 {
		cfg.DeleteWorkers = defaultDeleteWorkers
	}
	if cfg.IDProvider == nil {
		cfg.IDProvider = vault.NewUUIDProvider()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{cfg: cfg, objects: objects, presigner: presigner, logger: logger}
}

// Folder is the top-level key prefix for vault objects.
func (s *S3Store) Folder() string {
	return s.cfg.Folder
}

// CheckOwnership confirms fileID belongs to owner.
func (s *S3Store) CheckOwnership(owner, fileID string) error {
	return CheckOwnership(s.cfg.Folder, owner, fileID)
}

// AuthorizeUpload presigns a PUT for a fresh object under owner's prefix.
func (s *S3Store) AuthorizeUpload(ctx context.Context, owner, fileName, contentType string) (UploadAuthorization, error) {
	if !IsImageType(contentType) {
		return UploadAuthorization{}, ErrNotImage
	}
	fileID, err := s.newFileID(owner, fileName, contentType)
	if err != nil {
		return UploadAuthorization{}, err
	}
	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(fileID),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.UploadURLTTL))
	if err != nil {
		return UploadAuthorization{}, fmt.Errorf("media: presign upload: %w", err)
	}
	return UploadAuthorization{
		FileID:       fileID,
		UploadURL:    request.URL,
		Method:       request.Method,
		Headers:      request.SignedHeader,
		URL:          s.PublicURL(fileID),
		ThumbnailURL: s.ThumbnailURL(fileID),
		ExpiresAt:    s.cfg.Clock().UTC().Add(s.cfg.UploadURLTTL),
	}, nil
}

// Upload writes body under owner's prefix after confirming it is an image.
func (s *S3Store) Upload(ctx context.Context, owner, fileName string, body []byte) (StoredObject, error) {
	metadata, err := Inspect(body)
	if err != nil {
		return StoredObject{}, err
	}
	fileID, err := s.newFileID(owner, fileName, metadata.MIMEType)
	if err != nil {
		return StoredObject{}, err
	}
	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(fileID),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(metadata.MIMEType),
		ContentLength: aws.Int64(metadata.Size),
	})
	if err != nil {
		s.logger.Error("media upload failed", zap.String("file_id", fileID), zap.Error(err))
		return StoredObject{}, fmt.Errorf("media: put object: %w", err)
	}
	return StoredObject{
		FileID:       fileID,
		URL:          s.PublicURL(fileID),
		ThumbnailURL: s.ThumbnailURL(fileID),
		Metadata:     metadata,
	}, nil
}

// SignedURL presigns a GET for fileID. A non-positive ttl uses the configured default.
func (s *S3Store) SignedURL(ctx context.Context, fileID string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", time.Time{}, ErrInvalidFileID
	}
	if ttl <= 0 {
		ttl = s.cfg.SignedURLTTL
	}
	if ttl > maxSignedURLTTL {
		ttl = maxSignedURLTTL
	}
	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fileID),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("media: presign download: %w", err)
	}
	return request.URL, s.cfg.Clock().UTC().Add(ttl), nil
}

// Delete removes one object. Deleting a missing object succeeds.
func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return ErrInvalidFileID
	}
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		s.logger.Error("media delete failed", zap.String("file_id", fileID), zap.Error(err))
		return fmt.Errorf("media: delete object: %w", err)
	}
	return nil
}

// DeleteMany removes objects with bounded parallelism. One failure does not stop the others.
func (s *S3Store) DeleteMany(ctx context.Context, fileIDs []string) []DeleteOutcome {
	outcomes := make([]DeleteOutcome, len(fileIDs))
	var group errgroup.Group
	group.SetLimit(s.cfg.DeleteWorkers)
	for index, fileID := range fileIDs {
		group.Go(func() error {
			outcomes[index] = DeleteOutcome{FileID: fileID, Err: s.Delete(ctx, fileID)}
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

// PublicURL is the unsigned URL of fileID, on the CDN when one is configured.
func (s *S3Store) PublicURL(fileID string) string {
	if s.cfg.URLEndpoint != "" {
		return strings.TrimRight(s.cfg.URLEndpoint, "/") + "/" + escapeKey(fileID)
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escapeKey(fileID)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escapeKey(fileID))
}

// ThumbnailURL is the CDN-transformed URL of fileID, or the public URL without a transform.
func (s *S3Store) ThumbnailURL(fileID string) string {
	public := s.PublicURL(fileID)
	if s.cfg.URLEndpoint == "" || s.cfg.ThumbnailTransform == "" {
		return public
	}
	return public + "?" + thumbnailTransformFlag + "=" + url.QueryEscape(s.cfg.ThumbnailTransform)
}

func (s *S3Store) newFileID(owner, fileName, contentType string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", ErrForeignFileID
	}
	id, err := s.cfg.IDProvider.NewID()
	if err != nil {
		return "", fmt.Errorf("media: generate file id: %w", err)
	}
	return BuildFileID(s.cfg.Folder, owner, id, extensionFor(fileName, contentType)), nil
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
