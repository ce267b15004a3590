package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sanitykit/internal/api"
	"sanitykit/internal/models"
)

const defaultAssetMaxBody = 100 << 20 // 100 MiB

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := s.requireScope(w, r)
	if !ok {
		return
	}

	var kind models.AssetKind
	switch r.PathValue("kind") {
	case models.AssetKindImage.Endpoint():
		kind = models.AssetKindImage
	case models.AssetKindFile.Endpoint():
		kind = models.AssetKindFile
	default:
		s.writeServiceError(w, r, notFound(errTypeNotFound, fmt.Errorf("unknown asset endpoint %q", r.PathValue("kind"))))
		return
	}

	maxBytes := s.maxAssetBytes
	if maxBytes <= 0 {
		maxBytes = defaultAssetMaxBody
	}
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer body.Close()

	asset, err := s.assets.Upload(r.Context(), AssetUpload{
		Dataset:     dataset,
		Kind:        kind,
		Filename:    strings.TrimSpace(r.URL.Query().Get("filename")),
		ContentType: r.Header.Get("Content-Type"),
		BaseURL:     s.baseURL(r),
	}, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.AssetResponse{Document: asset})
}

func (s *Server) handleAssetContent(w http.ResponseWriter, r *http.Request) {
	dataset, ok := s.requireDataset(w, r)
	if !ok {
		return
	}

	content, err := s.assets.Open(r.Context(), dataset, strings.TrimSpace(r.PathValue("assetId")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	w.Header().Set("Content-Type", content.MediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.log().Warn("stream asset", "dataset", dataset, "asset_id", r.PathValue("assetId"), "error", err)
	}
}
