package operator

import (
	"context"
	"io"

	"gitlab.com/tozd/go/errors"
)

// ErrNotExist is returned (wrapped) by backends when the object at a path
// does not exist.
var ErrNotExist = errors.Base("object does not exist")

// Operator is a storage backend bound to one profile.
// Paths are backend-relative; implementations decide their own key format.
// Operators must be safe for concurrent use by independent transfers.
type Operator interface {
	// Kind returns the backend identifier (e.g. "fs", "s3").
	Kind() string

	// Reader opens the object at path for streaming reads.
	Reader(ctx context.Context, path string) (io.ReadCloser, error)

	// Writer opens a staged writer for the object at path.
	Writer(ctx context.Context, path string) (Writer, error)
}

// Writer is a staged sink for one object.
//
// Bytes written are not visible to readers of the destination until Close
// returns nil. Close must be called at most once, after the last Write.
// Abort discards whatever was staged and never commits; it is safe to call
// after a failed Write. A backend that cannot stage leaves the destination in
// an indeterminate state on Abort.
type Writer interface {
	io.Writer
	Close() error
	Abort() error
}
