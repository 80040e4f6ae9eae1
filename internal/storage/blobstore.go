// Package storage persists uploaded application documents and hands back
// durable public URLs. The BlobStore interface is the seam for swapping the
// local-disk store for a CDN-backed one.
package storage

import (
	"context"
	"io"
)

// StoredObject describes a persisted blob.
type StoredObject struct {
	StorageID string
	URL       string
	Size      int64
}

// BlobStore persists uploaded file content.
type BlobStore interface {
	// Put stores the content under a generated key derived from name and
	// returns the durable reference. The reader is consumed fully.
	Put(ctx context.Context, name string, content io.Reader) (*StoredObject, error)
	// Delete removes a stored object. Used by cleanup tooling only.
	Delete(ctx context.Context, storageID string) error
}
