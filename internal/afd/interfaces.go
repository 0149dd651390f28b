package afd

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStorage marks a failure to persist locally or remotely. It halts a run.
var ErrStorage = errors.New("storage unavailable")

// ErrInvalidName marks a document name the store cannot hold (too long,
// escaping the base directory, empty). It fails only the case it belongs to.
var ErrInvalidName = errors.New("invalid document name")

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
