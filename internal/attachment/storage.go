// Package attachment provides object storage for request attachments.
package attachment

import (
	"context"
	"io"
)

// Upload is a file received with a create or edit submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Storage stores attachment files and returns their public URLs.
type Storage interface {
	// Put stores the object under key and returns the URL it is served from.
	Put(ctx context.Context, key string, upload Upload) (string, error)

	// Remove deletes the object under key. Removing a missing object is
	// not an error.
	Remove(ctx context.Context, key string) error
}
