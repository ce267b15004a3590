package server

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sanitykit/internal/api"
	"sanitykit/internal/auth"
	"sanitykit/internal/blobstore"
	"sanitykit/internal/models"
	"sanitykit/internal/store"
)

const testToken = "devstore-test-token"

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "devstore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	blobs, err := blobstore.NewLocalCAS(filepath.Join(dir, "blobs"), 0)
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	srv := New("127.0.0.1:0", st, blobs, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

type testResponse struct {
	status int
	body   map[string]any
}

func doJSON(t *testing.T, method, target string, payload any, header http.Header) testResponse {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	out := testResponse{status: resp.StatusCode, body: map[string]any{}}
	if err := json.NewDecoder(resp.Body).Decode(&out.body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func mutate(t *testing.T, ts *httptest.Server, mutations ...map[string]any) testResponse {
	t.Helper()
	return doJSON(t, http.MethodPost, ts.URL+"/v2021-06-07/data/mutate/production?returnDocuments=true",
		map[string]any{"mutations": mutations}, nil)
}

func runQuery(t *testing.T, ts *httptest.Server, q string, params map[string]string) testResponse {
	t.Helper()
	values := url.Values{}
	values.Set("query", q)
	for k, v := range params {
		values.Set("$"+k, v)
	}
	return doJSON(t, http.MethodGet, ts.URL+"/v2021-06-07/data/query/production?"+values.Encode(), nil, nil)
}

func envelopeType(t *testing.T, resp testResponse) string {
	t.Helper()
	envelope, ok := resp.body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", resp.body)
	}
	typ, _ := envelope["type"].(string)
	return typ
}

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7444")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7444" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("allows host port form", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("localhost:7444")
		if err != nil || addr != "localhost:7444" {
			t.Fatalf("unexpected result %q, %v", addr, err)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:7444"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
		if _, err := ListenAddr(":7444"); err == nil {
			t.Fatal("expected error for all-interfaces listen address")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7444")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7444" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestWithAuth(t *testing.T) {
	hash, err := auth.HashToken(testToken)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	_, ts := newTestServer(t, Options{TokenHash: hash})
	target := ts.URL + "/v2021-06-07/data/query/production?query=" + url.QueryEscape(`*[_type == "post"]`)

	t.Run("denies missing auth", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, target, nil, nil)
		if resp.status != http.StatusUnauthorized || envelopeType(t, resp) != errTypeUnauthorized {
			t.Fatalf("expected 401 unauthorized, got %d %v", resp.status, resp.body)
		}
	})

	t.Run("denies wrong token", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, target, nil, http.Header{"Authorization": {"Bearer nope"}})
		if resp.status != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.status)
		}
	})

	t.Run("allows valid auth twice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp := doJSON(t, http.MethodGet, target, nil, http.Header{"Authorization": {"Bearer " + testToken}})
			if resp.status != http.StatusOK {
				t.Fatalf("attempt %d: expected 200, got %d %v", i, resp.status, resp.body)
			}
		}
	})

	t.Run("health stays public", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil, nil)
		if resp.status != http.StatusOK || resp.body["status"] != "ok" {
			t.Fatalf("unexpected health response: %d %v", resp.status, resp.body)
		}
	})
}

func TestMutateCreatePatchQuery(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, ts := newTestServer(t, Options{Now: func() time.Time { return fixed }})

	created := mutate(t, ts, map[string]any{"create": map[string]any{"_type": "post", "title": "Hello"}})
	if created.status != http.StatusOK {
		t.Fatalf("create: %d %v", created.status, created.body)
	}
	results := created.body["results"].([]any)
	first := results[0].(map[string]any)
	id, _ := first["id"].(string)
	if id == "" || first["operation"] != "create" {
		t.Fatalf("unexpected create result: %v", first)
	}
	doc := first["document"].(map[string]any)
	if doc["_createdAt"] != "2024-06-01T12:00:00Z" || doc["_rev"] == nil || doc["title"] != "Hello" {
		t.Fatalf("unexpected created document: %v", doc)
	}

	patched := mutate(t, ts, map[string]any{"patch": map[string]any{
		"id":  id,
		"set": map[string]any{"seo.title": "Hi", "views": 3},
	}})
	if patched.status != http.StatusOK {
		t.Fatalf("patch: %d %v", patched.status, patched.body)
	}

	resp := runQuery(t, ts, `*[_type == "post" && _id == $id]{title, "seoTitle": seo.title, views}`, map[string]string{"id": `"` + id + `"`})
	if resp.status != http.StatusOK {
		t.Fatalf("query: %d %v", resp.status, resp.body)
	}
	rows := resp.body["result"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %v", rows)
	}
	row := rows[0].(map[string]any)
	if row["title"] != "Hello" || row["seoTitle"] != "Hi" || row["views"] != float64(3) {
		t.Fatalf("unexpected row: %v", row)
	}

	unset := mutate(t, ts, map[string]any{"patch": map[string]any{"id": id, "unset": []string{"seo.title"}}})
	if unset.status != http.StatusOK {
		t.Fatalf("unset: %d %v", unset.status, unset.body)
	}
	resp = runQuery(t, ts, `*[_id == $id][0]`, map[string]string{"id": `"` + id + `"`})
	got := resp.body["result"].(map[string]any)
	if seo, _ := got["seo"].(map[string]any); len(seo) != 0 {
		t.Fatalf("expected seo.title unset, got %v", got["seo"])
	}
}

func TestMutateErrors(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	tests := []struct {
		name      string
		mutations []map[string]any
		status    int
		errType   string
	}{
		{
			name:      "missing type",
			mutations: []map[string]any{{"create": map[string]any{"title": "x"}}},
			status:    http.StatusBadRequest,
			errType:   errTypeMutation,
		},
		{
			name:      "patch missing document",
			mutations: []map[string]any{{"patch": map[string]any{"id": "nope", "set": map[string]any{"a": 1}}}},
			status:    http.StatusNotFound,
			errType:   errTypeDocumentNotFound,
		},
		{
			name:      "two operations",
			mutations: []map[string]any{{"create": map[string]any{"_type": "post"}, "delete": map[string]any{"id": "x"}}},
			status:    http.StatusBadRequest,
			errType:   errTypeInvalidRequest,
		},
		{
			name:      "bad delete query",
			mutations: []map[string]any{{"delete": map[string]any{"query": "*[title =="}}},
			status:    http.StatusBadRequest,
			errType:   errTypeQueryParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mutate(t, ts, tt.mutations...)
			if resp.status != tt.status {
				t.Fatalf("expected %d, got %d %v", tt.status, resp.status, resp.body)
			}
			if got := envelopeType(t, resp); got != tt.errType {
				t.Fatalf("expected type %q, got %q", tt.errType, got)
			}
		})
	}
}

func TestMutateIsAtomic(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	if resp := mutate(t, ts, map[string]any{"create": map[string]any{"_id": "dup", "_type": "post"}}); resp.status != http.StatusOK {
		t.Fatalf("seed: %d %v", resp.status, resp.body)
	}

	resp := mutate(t, ts,
		map[string]any{"create": map[string]any{"_id": "fresh", "_type": "post"}},
		map[string]any{"create": map[string]any{"_id": "dup", "_type": "post"}},
	)
	if resp.status != http.StatusConflict {
		t.Fatalf("expected 409, got %d %v", resp.status, resp.body)
	}

	q := runQuery(t, ts, `*[_id == "fresh"]`, nil)
	if rows := q.body["result"].([]any); len(rows) != 0 {
		t.Fatalf("expected rollback, found %v", rows)
	}
}

func TestDeleteByQueryAndID(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	mutate(t, ts,
		map[string]any{"create": map[string]any{"_id": "p1", "_type": "post"}},
		map[string]any{"create": map[string]any{"_id": "p2", "_type": "post"}},
		map[string]any{"create": map[string]any{"_id": "a1", "_type": "author"}},
	)

	resp := mutate(t, ts, map[string]any{"delete": map[string]any{"query": `*[_type == $type]`, "params": map[string]any{"type": "post"}}})
	if resp.status != http.StatusOK {
		t.Fatalf("delete by query: %d %v", resp.status, resp.body)
	}
	ids := resp.body["documentIds"].([]any)
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Fatalf("unexpected deleted ids: %v", ids)
	}

	resp = mutate(t, ts, map[string]any{"delete": map[string]any{"id": "a1"}})
	if results := resp.body["results"].([]any); len(results) != 1 {
		t.Fatalf("expected one delete result, got %v", results)
	}
	resp = mutate(t, ts, map[string]any{"delete": map[string]any{"id": "a1"}})
	if resp.status != http.StatusOK {
		t.Fatalf("deleting a missing id should succeed, got %d", resp.status)
	}
	if results := resp.body["results"].([]any); len(results) != 0 {
		t.Fatalf("expected no results for missing id, got %v", results)
	}
}

func TestQueryErrors(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := runQuery(t, ts, `*[_id == $id]`, map[string]string{"id": "not-json"})
	if resp.status != http.StatusBadRequest || envelopeType(t, resp) != errTypeQueryParse {
		t.Fatalf("expected query parse error, got %d %v", resp.status, resp.body)
	}

	resp = runQuery(t, ts, `*[_id == $id]`, nil)
	if resp.status != http.StatusBadRequest || envelopeType(t, resp) != errTypeQueryParse {
		t.Fatalf("expected missing param error, got %d %v", resp.status, resp.body)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/2021/data/query/production?query=*", nil, nil)
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for bad version, got %d", resp.status)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/data/query/Bad%20Set?query=*", nil, nil)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad dataset, got %d", resp.status)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestUploadAndServeAssets(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, err := api.NewClient(api.Options{APIHost: ts.URL, Dataset: "production"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx := context.Background()

	pngBytes := testPNG(t, 2, 3)
	img, err := client.UploadAsset(ctx, models.AssetKindImage, "Cover.PNG", "image/png", bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("upload image: %v", err)
	}
	wantID := "image-" + sha1Hex(pngBytes) + "-2x3-png"
	if img.ID != wantID || img.Type != models.ImageAssetType || img.OriginalFilename != "Cover.PNG" {
		t.Fatalf("unexpected image asset: %+v", img)
	}
	if img.URL != ts.URL+"/assets/production/"+wantID || img.Size != int64(len(pngBytes)) {
		t.Fatalf("unexpected image url/size: %+v", img)
	}

	again, err := client.UploadAsset(ctx, models.AssetKindImage, "copy.png", "image/png", bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("upload image again: %v", err)
	}
	if again.ID != img.ID || again.OriginalFilename != "Cover.PNG" {
		t.Fatalf("expected existing asset back, got %+v", again)
	}

	resp, err := http.Get(img.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, pngBytes) || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected download: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	text := []byte("plain notes")
	file, err := client.UploadAsset(ctx, models.AssetKindFile, "notes.txt", "", bytes.NewReader(text))
	if err != nil {
		t.Fatalf("upload file: %v", err)
	}
	if file.ID != "file-"+sha1Hex(text)+"-txt" || file.Type != models.FileAssetType {
		t.Fatalf("unexpected file asset: %+v", file)
	}
	if !strings.HasPrefix(file.MimeType, "text/plain") {
		t.Fatalf("expected sniffed text/plain, got %q", file.MimeType)
	}

	docs, err := client.Fetch(ctx, `*[_type == "sanity.imageAsset"]`, nil)
	if err != nil {
		t.Fatalf("fetch asset documents: %v", err)
	}
	if len(docs) != 1 || docs[0].ID() != wantID {
		t.Fatalf("unexpected asset documents: %v", docs)
	}
}

func TestUploadRejectsInvalidImage(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	client, err := api.NewClient(api.Options{APIHost: ts.URL, Dataset: "production"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	_, err = client.UploadAsset(context.Background(), models.AssetKindImage, "x.png", "image/png", strings.NewReader("not an image"))
	if !api.IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400, got %v", err)
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/assets/production/image-missing", nil, nil)
	if resp.status != http.StatusNotFound || envelopeType(t, resp) != errTypeAssetNotFound {
		t.Fatalf("expected asset not found, got %d %v", resp.status, resp.body)
	}
}

func TestUploadSizeLimit(t *testing.T) {
	_, ts := newTestServer(t, Options{MaxAssetBytes: 4})
	client, err := api.NewClient(api.Options{APIHost: ts.URL, Dataset: "production"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	_, err = client.UploadAsset(context.Background(), models.AssetKindFile, "big.txt", "text/plain", strings.NewReader("too large"))
	if !api.IsStatus(err, http.StatusRequestEntityTooLarge) {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestSetAndUnsetPath(t *testing.T) {
	doc := map[string]any{"_id": "a", "title": "x"}
	if err := setPath(doc, "seo.meta.title", "T"); err != nil {
		t.Fatalf("set nested: %v", err)
	}
	seo := doc["seo"].(map[string]any)
	if seo["meta"].(map[string]any)["title"] != "T" {
		t.Fatalf("unexpected doc: %v", doc)
	}
	if err := setPath(doc, "title.sub", 1); err == nil {
		t.Fatal("expected error setting through a scalar")
	}
	if err := setPath(doc, "_id", "b"); err == nil {
		t.Fatal("expected error setting _id")
	}
	if err := setPath(doc, "a..b", 1); err == nil {
		t.Fatal("expected error for empty segment")
	}
	if err := unsetPath(doc, "seo.meta.title"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if _, ok := seo["meta"].(map[string]any)["title"]; ok {
		t.Fatal("expected title removed")
	}
	if err := unsetPath(doc, "missing.path"); err != nil {
		t.Fatalf("unset missing: %v", err)
	}
}
