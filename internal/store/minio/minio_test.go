package minio_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	minioconfig "github.com/jonesrussell/north-cloud/sru-harvester/internal/config/minio"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/publish"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/minio"
)

type putCall struct {
	bucket string
	object string
	path   string
	opts   miniogo.PutObjectOptions
}

// fakeClient records calls made through the minio.API interface.
type fakeClient struct {
	mu        sync.Mutex
	exists    bool
	existsErr error
	makeErr   error
	putErr    error
	made      []string
	puts      []putCall
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeClient) MakeBucket(_ context.Context, bucket string, _ miniogo.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.made = append(f.made, bucket)
	return f.makeErr
}

func (f *fakeClient) FPutObject(
	_ context.Context, bucket, object, path string, opts miniogo.PutObjectOptions,
) (miniogo.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{bucket: bucket, object: object, path: path, opts: opts})
	if f.putErr != nil {
		return miniogo.UploadInfo{}, f.putErr
	}
	return miniogo.UploadInfo{Bucket: bucket, Key: object, Size: 10}, nil
}

func testConfig() *minioconfig.Config {
	cfg := minioconfig.NewConfig()
	cfg.AccessKey = "key"
	cfg.SecretKey = "secret"
	cfg.Bucket = "shards-test"
	return cfg
}

func TestEnsureContainer_CreatesMissingBucket(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	s := minio.NewWithClient(client, testConfig(), logger.NewNoOp())

	require.NoError(t, s.EnsureContainer(context.Background()))
	assert.Equal(t, []string{"shards-test"}, client.made)
}

func TestEnsureContainer_ExistingBucket(t *testing.T) {
	t.Parallel()

	client := &fakeClient{exists: true}
	s := minio.NewWithClient(client, testConfig(), logger.NewNoOp())

	require.NoError(t, s.EnsureContainer(context.Background()))
	assert.Empty(t, client.made)
}

func TestEnsureContainer_AlreadyOwnedIsNotAnError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{makeErr: miniogo.ErrorResponse{
		Code:       "BucketAlreadyOwnedByYou",
		StatusCode: http.StatusConflict,
	}}
	s := minio.NewWithClient(client, testConfig(), logger.NewNoOp())

	require.NoError(t, s.EnsureContainer(context.Background()))
}

func TestEnsureContainer_Errors(t *testing.T) {
	t.Parallel()

	s := minio.NewWithClient(&fakeClient{existsErr: errors.New("dial tcp: refused")}, testConfig(), logger.NewNoOp())
	require.Error(t, s.EnsureContainer(context.Background()))

	s = minio.NewWithClient(&fakeClient{makeErr: miniogo.ErrorResponse{
		Code:       "AccessDenied",
		StatusCode: http.StatusForbidden,
	}}, testConfig(), logger.NewNoOp())
	require.Error(t, s.EnsureContainer(context.Background()))
}

func TestPut_UploadsWithMetadata(t *testing.T) {
	t.Parallel()

	client := &fakeClient{exists: true}
	s := minio.NewWithClient(client, testConfig(), logger.NewNoOp())

	err := s.Put(context.Background(), "shards/shard_000001_000301.jsonl", store.Object{
		LocalPath: "/tmp/shard_000001_000301.jsonl",
		Size:      1234,
		SHA256:    "abc123",
		Metadata:  map[string]string{"count": "300"},
	})
	require.NoError(t, err)

	require.Len(t, client.puts, 1)
	call := client.puts[0]
	assert.Equal(t, "shards-test", call.bucket)
	assert.Equal(t, "shards/shard_000001_000301.jsonl", call.object)
	assert.Equal(t, "/tmp/shard_000001_000301.jsonl", call.path)
	assert.Equal(t, store.ContentTypeJSONL, call.opts.ContentType)
	assert.Equal(t, map[string]string{"count": "300", "sha256": "abc123", "size": "1234"}, call.opts.UserMetadata)

	assert.Equal(t, "s3://shards-test/shards/x.jsonl", s.Location("shards/x.jsonl"))
}

func TestPut_Error(t *testing.T) {
	t.Parallel()

	client := &fakeClient{putErr: errors.New("connection reset")}
	s := minio.NewWithClient(client, testConfig(), logger.NewNoOp())

	err := s.Put(context.Background(), "shards/a.jsonl", store.Object{LocalPath: "/tmp/a.jsonl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shards/a.jsonl")
}

func TestPut_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{name: "access denied", err: miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, status: http.StatusForbidden},
		{name: "invalid key", err: miniogo.ErrorResponse{Code: "InvalidAccessKeyId", StatusCode: http.StatusForbidden}, status: http.StatusForbidden},
		{name: "no such bucket", err: miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, status: http.StatusNotFound},
		{name: "slow down", err: miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, status: http.StatusServiceUnavailable, retryable: true},
		{name: "internal error", err: miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, status: http.StatusInternalServerError, retryable: true},
		{name: "connection reset", err: errors.New("connection reset"), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := minio.NewWithClient(&fakeClient{putErr: tt.err}, testConfig(), logger.NewNoOp())
			err := s.Put(context.Background(), "shards/a.jsonl", store.Object{LocalPath: "/tmp/a.jsonl"})
			require.Error(t, err)

			var respErr *minio.ResponseError
			if tt.status != 0 {
				require.ErrorAs(t, err, &respErr)
				assert.Equal(t, tt.status, respErr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &respErr))
			}
			assert.Equal(t, tt.retryable, publish.IsRetryable(err))
		})
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := minio.New(nil, logger.NewNoOp())
	require.Error(t, err)

	_, err = minio.New(minioconfig.NewConfig(), logger.NewNoOp())
	require.Error(t, err)
}

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	s, err := minio.New(testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, store.BackendMinIO, s.Name())
}
