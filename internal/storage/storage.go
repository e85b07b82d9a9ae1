// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and persistent file storage.
// Stitch operations acquire a Workspace for their intermediate files and
// write final outputs directly into the temp directory.
type Storage interface {
	// NewWorkspace creates a private directory for one operation. The caller
	// must Release it on every exit path.
	NewWorkspace(ctx context.Context, prefix string) (*Workspace, error)

	// OutputPath returns the path a final output named name is written to.
	OutputPath(name string) string

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
