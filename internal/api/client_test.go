package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sanitykit/internal/models"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestNewClientHosts(t *testing.T) {
	c, err := NewClient(Options{ProjectID: "abc123", Dataset: "production", UseCDN: true})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.baseURL != "https://abc123.api.sanity.io" {
		t.Fatalf("unexpected base url %q", c.baseURL)
	}
	if c.queryURL != "https://abc123.apicdn.sanity.io" {
		t.Fatalf("unexpected query url %q", c.queryURL)
	}
	if c.apiVersion != DefaultAPIVersion {
		t.Fatalf("expected default api version, got %q", c.apiVersion)
	}

	c, err = NewClient(Options{APIHost: "http://127.0.0.1:7444/", Dataset: "dev", APIVersion: "v1"})
	if err != nil {
		t.Fatalf("NewClient with host: %v", err)
	}
	if c.baseURL != "http://127.0.0.1:7444" || c.apiVersion != "1" {
		t.Fatalf("unexpected client %q %q", c.baseURL, c.apiVersion)
	}

	if _, err := NewClient(Options{Dataset: "dev"}); !errors.Is(err, ErrMissingProject) {
		t.Fatalf("expected ErrMissingProject, got %v", err)
	}
	if _, err := NewClient(Options{ProjectID: "p"}); !errors.Is(err, ErrMissingDataset) {
		t.Fatalf("expected ErrMissingDataset, got %v", err)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{APIHost: srv.URL, Dataset: "test", APIVersion: "2021-06-07", Token: "secret"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCreateSendsMutation(t *testing.T) {
	var got MutateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2021-06-07/data/mutate/test" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("returnDocuments") != "true" {
			t.Errorf("expected returnDocuments=true, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(MutateResponse{
			TransactionID: got.TransactionID,
			Results: []MutationResult{{
				ID:        "doc1",
				Operation: "create",
				Document:  models.Document{"_id": "doc1", "_type": "book", "title": "Dune"},
			}},
		})
	})

	doc, err := c.Create(context.Background(), models.Document{"_type": "book", "title": "Dune"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID() != "doc1" || doc["title"] != "Dune" {
		t.Fatalf("unexpected document %#v", doc)
	}
	if got.TransactionID == "" {
		t.Fatal("expected a transaction id")
	}
	if len(got.Mutations) != 1 || got.Mutations[0].Create.Type() != "book" {
		t.Fatalf("unexpected mutations %#v", got.Mutations)
	}
}

func TestPatchAndDeleteWireFormat(t *testing.T) {
	var bodies []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		_, _ = io.WriteString(w, `{"transactionId":"t","results":[{"id":"d1","operation":"update"}]}`)
	})

	if err := c.SetFields(context.Background(), "d1", map[string]any{"title": "New"}); err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	if err := c.Delete(context.Background(), Selector{Query: `*[_type == "book"]`}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(context.Background(), Selector{}); !errors.Is(err, ErrEmptySelector) {
		t.Fatalf("expected ErrEmptySelector, got %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	patch := bodies[0]["mutations"].([]any)[0].(map[string]any)["patch"].(map[string]any)
	if patch["id"] != "d1" || patch["set"].(map[string]any)["title"] != "New" {
		t.Fatalf("unexpected patch %#v", patch)
	}
	del := bodies[1]["mutations"].([]any)[0].(map[string]any)["delete"].(map[string]any)
	if del["query"] != `*[_type == "book"]` {
		t.Fatalf("unexpected delete %#v", del)
	}
	if _, ok := del["id"]; ok {
		t.Fatalf("delete by query should omit id: %#v", del)
	}
}

func TestFetchShapes(t *testing.T) {
	results := map[string]string{
		`*[_type == $type]`:     `[{"_id":"a","_type":"book"},{"_id":"b","_type":"book"}]`,
		`*[_type == $type][0]`:  `{"_id":"a","_type":"book"}`,
		`*[_type == "none"][0]`: `null`,
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2021-06-07/data/query/test" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q := r.URL.Query(); q.Has("$type") && q.Get("$type") != `"book"` {
			t.Errorf("expected JSON encoded param, got %q", r.URL.Query().Get("$type"))
		}
		q := r.URL.Query().Get("query")
		_, _ = io.WriteString(w, `{"ms":1,"query":"q","result":`+results[q]+`}`)
	})

	docs, err := c.Fetch(context.Background(), `*[_type == $type]`, map[string]any{"type": "book"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(docs) != 2 || docs[1].ID() != "b" {
		t.Fatalf("unexpected docs %#v", docs)
	}

	docs, err = c.Fetch(context.Background(), `*[_type == $type][0]`, map[string]any{"type": "book"})
	if err != nil || len(docs) != 1 || docs[0].ID() != "a" {
		t.Fatalf("single object: %#v, %v", docs, err)
	}

	docs, err = c.Fetch(context.Background(), `*[_type == "none"][0]`, nil)
	if err != nil || len(docs) != 0 {
		t.Fatalf("null result: %#v, %v", docs, err)
	}
}

func TestUploadAssetFromFile(t *testing.T) {
	var gotType, gotName, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2021-06-07/assets/images/test" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotType = r.Header.Get("Content-Type")
		gotName = r.URL.Query().Get("filename")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, `{"document":{"_id":"image-abc-1x1-png","_type":"sanity.imageAsset","size":3}}`)
	})

	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	asset, err := c.UploadAssetFromFile(context.Background(), models.AssetKindImage, path)
	if err != nil {
		t.Fatalf("UploadAssetFromFile: %v", err)
	}
	if asset.ID != "image-abc-1x1-png" || asset.Type != models.ImageAssetType {
		t.Fatalf("unexpected asset %#v", asset)
	}
	if gotType != "image/png" || gotName != "pic.png" || gotBody != "png" {
		t.Fatalf("unexpected upload %q %q %q", gotType, gotName, gotBody)
	}

	if _, err := c.UploadAssetFromFile(context.Background(), models.AssetKindImage, filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDecodeErrorShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{name: "object", status: 403, body: `{"error":{"description":"Insufficient permissions","type":"permissionDenied"}}`, wantCode: "permissionDenied", wantMsg: "Insufficient permissions"},
		{name: "string with message", status: 400, body: `{"error":"Bad Request","message":"invalid query","statusCode":400}`, wantCode: "Bad Request", wantMsg: "invalid query"},
		{name: "string only", status: 401, body: `{"error":"Unauthorized"}`, wantMsg: "Unauthorized"},
		{name: "plain text", status: 502, body: "upstream down", wantMsg: "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			err := c.Query(context.Background(), "*", nil, nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %T %v", err, err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.wantCode || apiErr.Message != tt.wantMsg {
				t.Fatalf("unexpected error %#v", apiErr)
			}
			if !IsStatus(err, tt.status) {
				t.Fatalf("IsStatus(%d) = false", tt.status)
			}
		})
	}
}
