package storage

import (
	"context"
	"io"
)

// Uploader stores a finished call recording and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (location string, err error)
}
