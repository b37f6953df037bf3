// Package blob stores image payloads apart from their metadata records.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no payload exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value payload store. Put overwrites. Delete of a
// missing key is not an error.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

type Object struct {
	ContentType string
	Data        []byte
}
