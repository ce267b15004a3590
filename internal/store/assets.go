package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sanitykit/internal/models"
)

const blobColumns = "id, sha256, sha1, size_bytes, storage_backend, blob_key, created_at"

// AssetStore persists uploaded asset metadata and blob bookkeeping.
type AssetStore interface {
	CreateAsset(ctx context.Context, dataset string, asset models.Asset, blob models.Blob, now time.Time) (models.Asset, bool, error)
	AssetFile(ctx context.Context, dataset, assetID string) (AssetFile, error)
}

var _ AssetStore = (*Store)(nil)

// AssetFile locates the bytes of one asset.
type AssetFile struct {
	AssetID  string
	MimeType string
	Blob     models.Blob
}

// CreateAsset records an uploaded asset: its blob row (shared by identical
// content), an asset index row and the asset metadata document. When the
// asset id already exists the stored asset is returned with existed=true.
func (s *Store) CreateAsset(ctx context.Context, dataset string, asset models.Asset, blob models.Blob, now time.Time) (stored models.Asset, existed bool, err error) {
	if asset.ID == "" || asset.Type == "" {
		return stored, false, fmt.Errorf("asset id and type are required")
	}

	err = s.InTx(ctx, func(tx *Tx) error {
		if doc, getErr := tx.Get(dataset, asset.ID); getErr == nil {
			existed = true
			return documentInto(doc, &stored)
		} else if !errors.Is(getErr, ErrNotFound) {
			return getErr
		}

		blobID, err := tx.ensureBlob(blob, now)
		if err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(tx.ctx,
			"INSERT INTO assets (dataset, id, kind, blob_id, mime_type, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			dataset, asset.ID, asset.Type, blobID, asset.MimeType, formatTime(now)); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}

		doc, err := assetDocument(asset)
		if err != nil {
			return err
		}
		inserted, err := tx.Insert(dataset, doc, now)
		if err != nil {
			return err
		}
		return documentInto(inserted, &stored)
	})
	return stored, existed, err
}

// AssetFile returns the blob behind an asset.
func (s *Store) AssetFile(ctx context.Context, dataset, assetID string) (AssetFile, error) {
	out := AssetFile{AssetID: assetID}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
SELECT a.mime_type, b.id, b.sha256, b.sha1, b.size_bytes, b.storage_backend, b.blob_key, b.created_at
FROM assets a JOIN blobs b ON b.id = a.blob_id
WHERE a.dataset = ? AND a.id = ?`, dataset, assetID).Scan(
		&out.MimeType, &out.Blob.ID, &out.Blob.SHA256, &out.Blob.SHA1, &out.Blob.SizeBytes,
		&out.Blob.StorageBackend, &out.Blob.BlobKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return out, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return out, err
	}
	out.Blob.CreatedAt = parseTime(createdAt)
	return out, nil
}

// BlobBySHA256 returns the blob row for a content digest.
func (s *Store) BlobBySHA256(ctx context.Context, sha256 string) (models.Blob, error) {
	return scanBlob(s.db.QueryRowContext(ctx, "SELECT "+blobColumns+" FROM blobs WHERE sha256 = ?", sha256))
}

func (t *Tx) ensureBlob(blob models.Blob, now time.Time) (string, error) {
	existing, err := scanBlob(t.tx.QueryRowContext(t.ctx, "SELECT "+blobColumns+" FROM blobs WHERE sha256 = ?", blob.SHA256))
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if blob.ID == "" {
		blob.ID, err = GenerateBlobID(func(id string) (bool, error) {
			var one int
			err := t.tx.QueryRowContext(t.ctx, "SELECT 1 FROM blobs WHERE id = ?", id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return err == nil, err
		})
		if err != nil {
			return "", err
		}
	}
	if _, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO blobs ("+blobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		blob.ID, blob.SHA256, blob.SHA1, blob.SizeBytes, blob.StorageBackend, blob.BlobKey, formatTime(now)); err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}
	return blob.ID, nil
}

func scanBlob(row *sql.Row) (models.Blob, error) {
	var b models.Blob
	var createdAt string
	err := row.Scan(&b.ID, &b.SHA256, &b.SHA1, &b.SizeBytes, &b.StorageBackend, &b.BlobKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("blob: %w", ErrNotFound)
	}
	if err != nil {
		return b, err
	}
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

func assetDocument(asset models.Asset) (models.Document, error) {
	raw, err := json.Marshal(asset)
	if err != nil {
		return nil, fmt.Errorf("encode asset: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode asset: %w", err)
	}
	return doc, nil
}

func documentInto(doc models.Document, asset *models.Asset) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, asset)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(dbTimeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
