package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Documents.
	mux.HandleFunc("POST /{version}/data/mutate/{dataset}", s.handleMutate)
	mux.HandleFunc("GET /{version}/data/query/{dataset}", s.handleQuery)

	// Assets.
	mux.HandleFunc("POST /{version}/assets/{kind}/{dataset}", s.handleUploadAsset)
	mux.HandleFunc("GET /assets/{dataset}/{assetId}", s.handleAssetContent)

	return mux
}
