package blob

import "context"

// Uploader stores an opaque binary blob and returns a permanent URL for it.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error)
	Ping(ctx context.Context) error
}
