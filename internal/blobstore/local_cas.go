package blobstore

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const casAlgorithmPrefix = "sha256"

// LocalCAS stores blob bytes in a local content-addressed tree.
type LocalCAS struct {
	root     string
	maxBytes int64
}

// NewLocalCAS creates a local CAS rooted at root. maxBytes <= 0 means no
// limit.
func NewLocalCAS(root string, maxBytes int64) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs, maxBytes: maxBytes}, nil
}

// Put streams r to disk while hashing it, then files the content under its
// SHA-256 digest. Identical content is stored once.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (PutResult, error) {
	var zero PutResult
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if c.maxBytes > 0 {
		src = io.LimitReader(r, c.maxBytes+1)
	}
	h256, h1 := sha256.New(), sha1.New()
	n, err := io.Copy(io.MultiWriter(tmp, h256, h1), src)
	if err != nil {
		discard()
		return zero, err
	}
	if c.maxBytes > 0 && n > c.maxBytes {
		discard()
		return zero, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		discard()
		return zero, err
	}

	res := PutResult{
		SHA256:    hex.EncodeToString(h256.Sum(nil)),
		SHA1:      hex.EncodeToString(h1.Sum(nil)),
		SizeBytes: n,
	}
	res.BlobKey = casKeyFromDigest(res.SHA256)
	dst := filepath.Join(c.root, filepath.FromSlash(res.BlobKey))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		discard()
		return zero, err
	}

	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(tmpPath)
		return res, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		discard()
		return zero, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		// Lost a race with an identical upload.
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return res, nil
		}
		discard()
		return zero, err
	}

	res.Created = true
	return res, nil
}

// Open returns a reader for blob key content.
func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func casKeyFromDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(c.root, clean), nil
}
