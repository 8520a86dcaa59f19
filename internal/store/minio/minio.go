// Package minio publishes shards to a MinIO (S3-compatible) bucket.
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/config/minio"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
)

// errCodeBucketOwned is returned by MakeBucket when the bucket already belongs to us.
const errCodeBucketOwned = "BucketAlreadyOwnedByYou"

// API is the subset of the MinIO client used by the store.
type API interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error
	FPutObject(
		ctx context.Context, bucketName, objectName, filePath string, opts miniogo.PutObjectOptions,
	) (miniogo.UploadInfo, error)
}

// Store uploads objects into one bucket.
type Store struct {
	client API
	config *minio.Config
	logger logger.Interface
}

var _ store.Store = (*Store)(nil)

// New creates a MinIO store from configuration.
func New(cfg *minio.Config, log logger.Interface) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("minio config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	log.Info("MinIO store initialized",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket)

	return NewWithClient(client, cfg, log), nil
}

// NewWithClient creates a store around an existing client.
func NewWithClient(client API, cfg *minio.Config, log logger.Interface) *Store {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Store{client: client, config: cfg, logger: log}
}

// ResponseError is an S3 error response returned by the server.
type ResponseError struct {
	Code       string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("minio: %s (status %d): %v", e.Code, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call may succeed. Rejections such as
// AccessDenied or NoSuchBucket are permanent.
func (e *ResponseError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// classify wraps server error responses in a ResponseError. Transport errors
// carry no status and are returned unchanged.
func classify(err error) error {
	resp := miniogo.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return err
	}
	return &ResponseError{Code: resp.Code, StatusCode: resp.StatusCode, Err: err}
}

// Name implements store.Store.
func (s *Store) Name() string { return store.BackendMinIO }

// EnsureContainer creates the bucket when it does not exist.
func (s *Store) EnsureContainer(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.UploadTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.config.Bucket, classify(err))
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.config.Bucket, miniogo.MakeBucketOptions{Region: s.config.Region})
	if err != nil {
		if miniogo.ToErrorResponse(err).Code == errCodeBucketOwned {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.config.Bucket, classify(err))
	}

	s.logger.Info("Created MinIO bucket", "bucket", s.config.Bucket)
	return nil
}

// Put uploads the object file under remotePath.
func (s *Store) Put(ctx context.Context, remotePath string, obj store.Object) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.UploadTimeout)
	defer cancel()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = store.ContentTypeJSONL
	}

	metadata := make(map[string]string, len(obj.Metadata)+2)
	for k, v := range obj.Metadata {
		metadata[k] = v
	}
	if obj.SHA256 != "" {
		metadata["sha256"] = obj.SHA256
	}
	if obj.Size > 0 {
		metadata["size"] = strconv.FormatInt(obj.Size, 10)
	}

	info, err := s.client.FPutObject(ctx, s.config.Bucket, remotePath, obj.LocalPath, miniogo.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", remotePath, classify(err))
	}

	s.logger.Debug("Uploaded shard to MinIO",
		"object_key", remotePath,
		"size", info.Size,
		"etag", info.ETag)

	return nil
}

// Location returns the s3 URI of remotePath.
func (s *Store) Location(remotePath string) string {
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, remotePath)
}
