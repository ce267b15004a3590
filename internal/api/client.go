package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sanitykit/internal/models"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "SANITYKIT_HTTP_TIMEOUT"

	DefaultAPIVersion = "2021-06-07"
)

var (
	ErrMissingProject = errors.New("project id is required when no api host is set")
	ErrMissingDataset = errors.New("dataset is required")
	ErrEmptySelector  = errors.New("delete needs a document id or a query")
)

// Options configures a Client.
type Options struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	// APIHost overrides the project host, e.g. a local devstore.
	APIHost string
	// UseCDN routes queries through the cached edge host.
	UseCDN bool

	HTTPTimeout time.Duration
	HTTPClient  *http.Client
}

// Client speaks the document store's data and assets HTTP API.
type Client struct {
	baseURL    string
	queryURL   string
	dataset    string
	apiVersion string
	http       *http.Client
	authToken  string
}

// NewClient creates a new API client.
func NewClient(opts Options) (*Client, error) {
	dataset := strings.TrimSpace(opts.Dataset)
	if dataset == "" {
		return nil, ErrMissingDataset
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.APIHost), "/")
	queryURL := baseURL
	if baseURL == "" {
		project := strings.TrimSpace(opts.ProjectID)
		if project == "" {
			return nil, ErrMissingProject
		}
		baseURL = "https://" + project + ".api.sanity.io"
		queryURL = baseURL
		if opts.UseCDN {
			queryURL = "https://" + project + ".apicdn.sanity.io"
		}
	}

	version := strings.TrimPrefix(strings.TrimSpace(opts.APIVersion), "v")
	if version == "" {
		version = DefaultAPIVersion
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = httpTimeoutFromEnv()
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		queryURL:   queryURL,
		dataset:    dataset,
		apiVersion: version,
		http:       httpClient,
		authToken:  strings.TrimSpace(opts.Token),
	}, nil
}

// Dataset returns the dataset all calls are scoped to.
func (c *Client) Dataset() string { return c.dataset }

// BaseURL returns the host mutations and uploads are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// Mutate applies mutations atomically in one transaction.
func (c *Client) Mutate(ctx context.Context, mutations []Mutation) (MutateResponse, error) {
	var resp MutateResponse
	query := url.Values{}
	query.Set("returnIds", "true")
	query.Set("returnDocuments", "true")
	query.Set("visibility", "sync")

	req := MutateRequest{Mutations: mutations, TransactionID: uuid.NewString()}
	err := c.do(ctx, c.baseURL, http.MethodPost, c.dataPath("mutate"), query, req, &resp)
	return resp, err
}

// Create stores doc and returns it as persisted, including its new _id.
func (c *Client) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	resp, err := c.Mutate(ctx, []Mutation{{Create: doc}})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("create returned no result")
	}

	result := resp.Results[0]
	created := result.Document
	if created == nil {
		created = doc.Clone()
	}
	if created.ID() == "" && result.ID != "" {
		created[models.FieldID] = result.ID
	}
	return created, nil
}

// Patch starts a patch against document id. Nothing is sent until Commit.
func (c *Client) Patch(id string) *Patch {
	return &Patch{client: c, mutation: PatchMutation{ID: id}}
}

// SetFields is Patch(id).Set(fields).Commit(ctx) without the result.
func (c *Client) SetFields(ctx context.Context, id string, fields map[string]any) error {
	_, err := c.Patch(id).Set(fields).Commit(ctx)
	return err
}

// Selector picks the documents a delete applies to: one id, or a query.
type Selector struct {
	ID     string
	Query  string
	Params map[string]any
}

func (s Selector) String() string {
	if s.ID != "" {
		return "id " + s.ID
	}
	return "query " + s.Query
}

// Delete removes the selected documents.
func (c *Client) Delete(ctx context.Context, sel Selector) error {
	if (sel.ID == "") == (sel.Query == "") {
		return ErrEmptySelector
	}
	_, err := c.Mutate(ctx, []Mutation{{Delete: &DeleteMutation{ID: sel.ID, Query: sel.Query, Params: sel.Params}}})
	return err
}

// Query runs a query and decodes its result into out.
func (c *Client) Query(ctx context.Context, q string, params map[string]any, out any) error {
	query := url.Values{}
	query.Set("query", q)
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode query param %s: %w", name, err)
		}
		query.Set("$"+strings.TrimPrefix(name, "$"), string(encoded))
	}

	var resp QueryResponse
	if err := c.do(ctx, c.queryURL, http.MethodGet, c.dataPath("query"), query, nil, &resp); err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// Fetch runs a query expected to return documents. A single object result is
// returned as a one-element list and null as an empty one.
func (c *Client) Fetch(ctx context.Context, q string, params map[string]any) ([]models.Document, error) {
	var raw json.RawMessage
	if err := c.Query(ctx, q, params, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return []models.Document{}, nil
	case trimmed[0] == '{':
		var doc models.Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		return []models.Document{doc}, nil
	}

	var docs []models.Document
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return docs, nil
}

// UploadAsset streams body to the assets endpoint for kind.
func (c *Client) UploadAsset(ctx context.Context, kind models.AssetKind, filename, contentType string, body io.Reader) (models.Asset, error) {
	var resp AssetResponse
	if !models.IsValidAssetKind(kind) {
		return resp.Document, fmt.Errorf("invalid asset kind: %s", kind)
	}

	query := url.Values{}
	if filename != "" {
		query.Set("filename", filename)
	}
	endpoint := c.baseURL + "/v" + c.apiVersion + "/assets/" + kind.Endpoint() + "/" + url.PathEscape(c.dataset) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return resp.Document, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuthHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp.Document, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp.Document, decodeError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp.Document, err
	}
	return resp.Document, nil
}

// UploadAssetFromFile uploads the file at path. The content type is taken
// from the extension, falling back to sniffing the first bytes.
func (c *Client) UploadAssetFromFile(ctx context.Context, kind models.AssetKind, path string) (models.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Asset{}, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return models.Asset{}, fmt.Errorf("rewind asset: %w", err)
		}
	}

	return c.UploadAsset(ctx, kind, filepath.Base(path), contentType, f)
}

func (c *Client) dataPath(endpoint string) string {
	return "/v" + c.apiVersion + "/data/" + endpoint + "/" + url.PathEscape(c.dataset)
}

func (c *Client) do(ctx context.Context, base, method, path string, query url.Values, body any, out any) error {
	endpoint := base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
