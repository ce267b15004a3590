package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"sanitykit/internal/store"
)

const (
	defaultJSONMaxBody = 1 << 20  // 1 MiB
	mutateJSONMaxBody  = 16 << 20 // 16 MiB
)

// Error types reported in the "type" field of error envelopes.
const (
	errTypeInvalidRequest   = "invalidRequestError"
	errTypeQueryParse       = "queryParseError"
	errTypeMutation         = "mutationError"
	errTypeDocumentNotFound = "documentNotFoundError"
	errTypeAssetNotFound    = "assetNotFoundError"
	errTypeUnauthorized     = "unauthorizedError"
	errTypeTooLarge         = "payloadTooLargeError"
	errTypeNotFound         = "notFoundError"
	errTypeInternal         = "internalError"
)

var (
	apiVersionPattern = regexp.MustCompile(`^v(?:1|X|\d{4}-\d{2}-\d{2})$`)
	datasetPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

type apiError struct {
	status int
	typ    string
	err    error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, typ string, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}

	return apiError{status: status, typ: typ, err: err}
}

func badRequest(err error) error {
	return makeAPIError(http.StatusBadRequest, errTypeInvalidRequest, err)
}

func queryParseError(err error) error {
	return makeAPIError(http.StatusBadRequest, errTypeQueryParse, err)
}

func mutationError(status int, err error) error {
	return makeAPIError(status, errTypeMutation, err)
}

func notFound(typ string, err error) error {
	return makeAPIError(http.StatusNotFound, typ, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, errTypeInternal, err)
}

// storeError maps store sentinels onto HTTP errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(errTypeDocumentNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return mutationError(http.StatusConflict, err)
	default:
		return internalError(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorType(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.typ != "" {
		return apiErr.typ
	}
	switch status {
	case http.StatusBadRequest:
		return errTypeInvalidRequest
	case http.StatusUnauthorized:
		return errTypeUnauthorized
	case http.StatusNotFound:
		return errTypeNotFound
	case http.StatusRequestEntityTooLarge:
		return errTypeTooLarge
	default:
		return errTypeInternal
	}
}

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	typ := errorType(status, err)
	message := err.Error()

	fields := []any{"status", status, "type", typ, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status == http.StatusUnauthorized:
		s.log().Warn("request rejected", fields...)
	default:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, errorEnvelope{Error: errorBody{Description: message, Type: typ}})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return makeAPIError(http.StatusRequestEntityTooLarge, errTypeTooLarge, fmt.Errorf("request body too large"))
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequest(fmt.Errorf("invalid JSON payload"))
	}
	return badRequest(err)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	if err := decodeJSON(w, r, maxBytes, dst); err != nil {
		err = classifyDecodeJSONError(err)
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return false
	}
	return true
}

// requireScope validates the {version} and {dataset} path values.
func (s *Server) requireScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	version := r.PathValue("version")
	if !apiVersionPattern.MatchString(version) {
		s.writeErrorReq(w, r, http.StatusNotFound, notFound(errTypeNotFound, fmt.Errorf("unknown api version %q", version)))
		return "", false
	}
	return s.requireDataset(w, r)
}

func (s *Server) requireDataset(w http.ResponseWriter, r *http.Request) (string, bool) {
	dataset := strings.TrimSpace(r.PathValue("dataset"))
	if !datasetPattern.MatchString(dataset) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("invalid dataset %q", dataset)))
		return "", false
	}
	return dataset, true
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		return strings.ToLower(proto)
	}
	return "http"
}

// baseURL is the public origin used to build asset urls.
func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	return requestScheme(r) + "://" + r.Host
}
