package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sanitykit/internal/api"
)

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	dataset, ok := s.requireScope(w, r)
	if !ok {
		return
	}

	returnDocuments, err := queryBool(r, "returnDocuments")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req api.MutateRequest
	if !s.decodeJSONReq(w, r, mutateJSONMaxBody, &req) {
		return
	}

	resp, err := s.documents.Mutate(r.Context(), dataset, req, returnDocuments)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	dataset, ok := s.requireScope(w, r)
	if !ok {
		return
	}

	values := r.URL.Query()
	src := strings.TrimSpace(values.Get("query"))
	if src == "" {
		s.writeServiceError(w, r, badRequest(fmt.Errorf("query is required")))
		return
	}
	params, err := queryParams(values)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.documents.Query(r.Context(), dataset, src, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueryResponse{
		MS:     int(time.Since(start).Milliseconds()),
		Query:  src,
		Result: raw,
	})
}

// queryParams decodes $name=<json> query string entries.
func queryParams(values map[string][]string) (map[string]any, error) {
	params := map[string]any{}
	for key, vals := range values {
		if !strings.HasPrefix(key, "$") || len(vals) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, "$")
		dec := json.NewDecoder(bytes.NewReader([]byte(vals[0])))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, queryParseError(fmt.Errorf("param $%s is not valid JSON", name))
		}
		params[name] = v
	}
	return params, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequest(fmt.Errorf("invalid %s", key))
	}
	return parsed, nil
}
