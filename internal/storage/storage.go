// Package storage reads objects from an S3-compatible store. Objects are
// streamed; nothing is staged on local disk.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains basic information about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Storage is a read-only view of one bucket.
type Storage interface {
	// Get returns the object's content as a streaming reader alongside its info.
	// The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}
