// Package store defines the remote blob store capability shards are published to.
package store

import (
	"context"
	"errors"
)

// Backend names accepted in configuration.
const (
	BackendMinIO       = "minio"
	BackendHuggingFace = "huggingface"
	BackendLocal       = "local"
)

// ErrUnknownBackend is returned for an unsupported store backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Object describes a local file to upload.
type Object struct {
	// LocalPath is the file to upload.
	LocalPath string
	// ContentType is the MIME type recorded with the object, where supported.
	ContentType string
	// Size is the file size in bytes.
	Size int64
	// SHA256 is the hex digest of the file content.
	SHA256 string
	// Metadata is attached to the object, where supported.
	Metadata map[string]string
}

// Store is a remote container that objects are written to by path.
// Writing the same path twice replaces the object.
type Store interface {
	// Name identifies the backend in logs.
	Name() string
	// EnsureContainer creates the bucket, repository or directory if missing.
	EnsureContainer(ctx context.Context) error
	// Put uploads obj to remotePath.
	Put(ctx context.Context, remotePath string, obj Object) error
	// Location returns a human-readable address for remotePath.
	Location(remotePath string) string
}

// ContentTypeJSONL is the content type of shard files.
const ContentTypeJSONL = "application/x-ndjson"
