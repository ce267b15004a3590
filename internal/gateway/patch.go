package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gosimple/slug"

	"sanitykit/internal/models"
)

// Set patches one field of a document. documentID "" means the current
// document.
func (g *Gateway) Set(ctx context.Context, fieldName string, value any, documentID string) error {
	id, err := g.resolveID(documentID)
	if err != nil {
		return err
	}
	return g.patch(ctx, "set", g.policies.Set, id, map[string]any{fieldName: value})
}

// Attach points fieldName of a document at targetID through a reference.
func (g *Gateway) Attach(ctx context.Context, fieldName, targetID, documentID string) error {
	id, err := g.resolveID(documentID)
	if err != nil {
		return err
	}
	return g.patch(ctx, "attach", g.policies.Attach, id, map[string]any{
		fieldName: models.NewReference(targetID),
	})
}

// AttachImage uploads the image at imageURL as an asset and links it from
// fieldName. Remote images are downloaded to a temporary file that is removed
// once the call returns. Local paths and file:// URLs are uploaded directly.
//
// Download and upload failures are returned; a failing patch follows the
// attach-image policy.
func (g *Gateway) AttachImage(ctx context.Context, imageURL, fieldName, imageType, documentID string) error {
	id, err := g.resolveID(documentID)
	if err != nil {
		return err
	}

	localPath, cleanup, err := g.fetchImage(ctx, imageURL)
	if err != nil {
		return err
	}
	defer cleanup()

	asset, err := g.store.UploadAssetFromFile(ctx, models.AssetKindImage, localPath)
	if err != nil {
		return fmt.Errorf("upload image %s: %w", imageURL, err)
	}
	g.logger.Debug("image uploaded", "asset", asset.ID, "source", imageURL)

	return g.patch(ctx, "attach image", g.policies.AttachImage, id, map[string]any{
		fieldName: models.NewImageField(imageType, asset.ID),
	})
}

func (g *Gateway) fetchImage(ctx context.Context, imageURL string) (string, func(), error) {
	noop := func() {}

	u, err := url.Parse(imageURL)
	if err != nil {
		return "", noop, fmt.Errorf("parse image url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "file":
		return u.Path, noop, nil
	case "":
		return imageURL, noop, nil
	default:
		return "", noop, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", noop, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", noop, fmt.Errorf("download image: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(g.tempDir, tempPattern(u.Path))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("remove temp file", "path", tmp.Name(), "error", err)
		}
	}

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, g.maxImage+1))
	if err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("download image: %w", err)
	}
	if n > g.maxImage {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("download image %s: %w (%d bytes)", imageURL, ErrImageTooLarge, g.maxImage)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("write temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// tempPattern keeps the source extension so the upload's content type can be
// derived from the file name.
func tempPattern(urlPath string) string {
	base := path.Base(urlPath)
	ext := path.Ext(base)
	name := slug.Make(strings.TrimSuffix(base, ext))
	if name == "" || name == "-" {
		name = "image"
	}
	return "sanitykit-" + name + "-*" + strings.ToLower(ext)
}

// CopyFailure records one document CopyField could not update.
type CopyFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// CopyReport summarizes a CopyField run.
type CopyReport struct {
	Total   int           `json:"total"`
	Updated []string      `json:"updated"`
	Failed  []CopyFailure `json:"failed"`
}

// CopyField sets targetField := sourceField on every document of
// schemaType, one patch per document, pacing between documents. Under the
// default policy a failed patch is logged and recorded in the report and the
// loop continues.
func (g *Gateway) CopyField(ctx context.Context, schemaType, targetField, sourceField string) (CopyReport, error) {
	report := CopyReport{Updated: []string{}, Failed: []CopyFailure{}}

	docs, err := g.ListAll(ctx, schemaType, nil)
	if err != nil {
		return report, err
	}
	report.Total = len(docs)

	for _, doc := range docs {
		id := doc.ID()
		var err error
		if id == "" {
			err = fmt.Errorf("document has no %s", models.FieldID)
		} else {
			err = g.store.SetFields(ctx, id, map[string]any{targetField: doc[sourceField]})
		}
		if err != nil {
			if g.policies.CopyField == Propagate {
				report.Failed = append(report.Failed, CopyFailure{ID: id, Error: err.Error(), Err: err})
				return report, fmt.Errorf("copy field %s: %w", id, err)
			}
			g.logger.Error("copy field failed", "id", id, "target", targetField, "source", sourceField, "error", err)
			report.Failed = append(report.Failed, CopyFailure{ID: id, Error: err.Error(), Err: err})
		} else {
			report.Updated = append(report.Updated, id)
		}

		if err := g.wait(ctx); err != nil {
			return report, err
		}
	}

	g.logger.Info("field copied", "type", schemaType, "target", targetField, "source", sourceField,
		"updated", len(report.Updated), "failed", len(report.Failed))
	return report, nil
}
