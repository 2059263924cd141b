package pinledger

import (
	"context"
	"errors"
)

//go:generate mockgen -source=blob.go -destination=mocks/blob.go -package=mocks

var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is an opaque durable key-value store for whole documents.
// Get returns ErrBlobNotFound when nothing was stored under key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
