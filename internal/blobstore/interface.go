package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge is returned by Put when the payload exceeds the store limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

// PutResult describes one persisted asset payload.
type PutResult struct {
	SHA256    string
	SHA1      string
	SizeBytes int64
	BlobKey   string
	// Created is false when identical content was already stored.
	Created bool
}

// BlobStore holds the bytes behind uploaded assets.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var _ BlobStore = (*LocalCAS)(nil)
