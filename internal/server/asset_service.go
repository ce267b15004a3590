package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"sanitykit/internal/blobstore"
	"sanitykit/internal/models"
	"sanitykit/internal/store"
)

const (
	localCASBackend        = "local_cas"
	fallbackAssetMediaType = "application/octet-stream"
	fallbackAssetExtension = "bin"
	mediaTypeSniffBytes    = 512
)

// AssetService stores uploaded asset bytes and their metadata documents.
type AssetService struct {
	store store.AssetStore
	blobs blobstore.BlobStore
	now   func() time.Time
}

// AssetUpload describes one incoming upload.
type AssetUpload struct {
	Dataset     string
	Kind        models.AssetKind
	Filename    string
	ContentType string
	// BaseURL is the public origin asset urls are built on.
	BaseURL string
}

// AssetContent is an open asset payload.
type AssetContent struct {
	Reader    io.ReadCloser
	SizeBytes int64
	MediaType string
}

// NewAssetService constructs an AssetService.
func NewAssetService(st store.AssetStore, blobs blobstore.BlobStore, now func() time.Time) *AssetService {
	if now == nil {
		now = time.Now
	}
	return &AssetService{store: st, blobs: blobs, now: now}
}

// Upload stores content and records the asset. Uploading identical content
// again returns the existing asset.
func (s *AssetService) Upload(ctx context.Context, in AssetUpload, content io.Reader) (models.Asset, error) {
	var zero models.Asset
	if s == nil || s.store == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("asset service is not configured"))
	}
	if !models.IsValidAssetKind(in.Kind) {
		return zero, badRequest(fmt.Errorf("invalid asset kind %q", in.Kind))
	}

	put, err := s.blobs.Put(ctx, content)
	if err != nil {
		if errors.Is(err, blobstore.ErrTooLarge) {
			return zero, makeAPIError(http.StatusRequestEntityTooLarge, errTypeTooLarge, err)
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return zero, makeAPIError(http.StatusRequestEntityTooLarge, errTypeTooLarge, fmt.Errorf("asset too large"))
		}
		return zero, internalError(err)
	}

	asset, err := s.record(ctx, in, put)
	if err != nil && put.Created {
		if delErr := s.blobs.Delete(ctx, put.BlobKey); delErr != nil {
			err = errors.Join(err, delErr)
		}
	}
	return asset, err
}

func (s *AssetService) record(ctx context.Context, in AssetUpload, put blobstore.PutResult) (models.Asset, error) {
	var zero models.Asset

	mediaType, err := s.mediaType(ctx, in.ContentType, put.BlobKey)
	if err != nil {
		return zero, err
	}

	ext := assetExtension(in.Filename, mediaType)
	id := fmt.Sprintf("file-%s-%s", put.SHA1, ext)
	if in.Kind == models.AssetKindImage {
		width, height, format, err := s.imageConfig(ctx, put.BlobKey)
		if err != nil {
			return zero, err
		}
		if format == "jpeg" {
			format = "jpg"
		}
		ext = format
		id = fmt.Sprintf("image-%s-%dx%d-%s", put.SHA1, width, height, ext)
	}

	assetPath := "assets/" + in.Dataset + "/" + id
	filename := strings.TrimSpace(in.Filename)
	if filename != "" {
		filename = filepath.Base(filename)
	}
	asset := models.Asset{
		ID:               id,
		Type:             in.Kind.DocumentType(),
		URL:              strings.TrimRight(in.BaseURL, "/") + "/" + assetPath,
		Path:             assetPath,
		OriginalFilename: filename,
		MimeType:         mediaType,
		Extension:        ext,
		Size:             put.SizeBytes,
		SHA1Hash:         put.SHA1,
		AssetID:          put.SHA1,
	}

	stored, _, err := s.store.CreateAsset(ctx, in.Dataset, asset, models.Blob{
		SHA256:         put.SHA256,
		SHA1:           put.SHA1,
		SizeBytes:      put.SizeBytes,
		StorageBackend: localCASBackend,
		BlobKey:        put.BlobKey,
	}, s.now().UTC())
	if err != nil {
		return zero, internalError(err)
	}
	return stored, nil
}

// mediaType normalizes the declared type, sniffing the content when none
// was given.
func (s *AssetService) mediaType(ctx context.Context, declared, key string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", badRequest(fmt.Errorf("invalid content type"))
		}
		parsed = strings.ToLower(parsed)
		if parsed != fallbackAssetMediaType {
			return parsed, nil
		}
	}

	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return "", internalError(err)
	}
	defer rc.Close()
	head := make([]byte, mediaTypeSniffBytes)
	n, _ := io.ReadFull(rc, head)
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	if sniffed == "" {
		sniffed = fallbackAssetMediaType
	}
	return sniffed, nil
}

func (s *AssetService) imageConfig(ctx context.Context, key string) (int, int, string, error) {
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return 0, 0, "", internalError(err)
	}
	defer rc.Close()

	cfg, format, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, "", badRequest(fmt.Errorf("unsupported or invalid image: %w", err))
	}
	return cfg.Width, cfg.Height, format, nil
}

// Open returns the payload behind an asset.
func (s *AssetService) Open(ctx context.Context, dataset, assetID string) (*AssetContent, error) {
	if s == nil || s.store == nil || s.blobs == nil {
		return nil, internalError(fmt.Errorf("asset service is not configured"))
	}

	file, err := s.store.AssetFile(ctx, dataset, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound(errTypeAssetNotFound, fmt.Errorf("asset %q not found", assetID))
	}
	if err != nil {
		return nil, internalError(err)
	}

	rc, err := s.blobs.Open(ctx, file.Blob.BlobKey)
	if err != nil {
		return nil, notFound(errTypeAssetNotFound, fmt.Errorf("asset %q content not found", assetID))
	}

	mediaType := strings.TrimSpace(file.MimeType)
	if mediaType == "" {
		mediaType = fallbackAssetMediaType
	}
	return &AssetContent{Reader: rc, SizeBytes: file.Blob.SizeBytes, MediaType: mediaType}, nil
}

// assetExtension prefers the uploaded filename's extension, then one
// registered for the media type.
func assetExtension(filename, mediaType string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(filename)), "."))
	if ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return fallbackAssetExtension
}
