package api

import (
	"encoding/json"

	"sanitykit/internal/models"
)

// Mutation is one entry of a mutate request. Exactly one field is set.
type Mutation struct {
	Create models.Document `json:"create,omitempty"`
	Patch  *PatchMutation  `json:"patch,omitempty"`
	Delete *DeleteMutation `json:"delete,omitempty"`
}

// PatchMutation sets and unsets fields on one existing document.
type PatchMutation struct {
	ID    string         `json:"id"`
	Set   map[string]any `json:"set,omitempty"`
	Unset []string       `json:"unset,omitempty"`
}

// DeleteMutation removes one document by id, or every document matched by
// a query.
type DeleteMutation struct {
	ID     string         `json:"id,omitempty"`
	Query  string         `json:"query,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// MutateRequest is the body of POST /data/mutate/{dataset}.
type MutateRequest struct {
	Mutations     []Mutation `json:"mutations"`
	TransactionID string     `json:"transactionId,omitempty"`
}

// MutationResult reports the outcome for one affected document.
type MutationResult struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Document  models.Document `json:"document,omitempty"`
}

// MutateResponse is returned by the mutate endpoint.
type MutateResponse struct {
	TransactionID string           `json:"transactionId"`
	Results       []MutationResult `json:"results"`
	DocumentIDs   []string         `json:"documentIds,omitempty"`
}

// QueryResponse is returned by the query endpoint. Result is kept raw since
// its shape depends on the query.
type QueryResponse struct {
	MS     int             `json:"ms"`
	Query  string          `json:"query"`
	Result json.RawMessage `json:"result"`
}

// AssetResponse wraps the asset document created by an upload.
type AssetResponse struct {
	Document models.Asset `json:"document"`
}

// ErrorResponse covers both error envelopes the store emits:
//
//	{"error":{"description":"...","type":"..."}}
//	{"error":"Bad Request","message":"...","statusCode":400}
type ErrorResponse struct {
	Error      json.RawMessage `json:"error"`
	Message    string          `json:"message,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
}

// ErrorDetail is the object form of ErrorResponse.Error.
type ErrorDetail struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}
