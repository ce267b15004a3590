package api

import (
	"context"
	"fmt"

	"sanitykit/internal/models"
)

// Patch accumulates field operations for one document.
type Patch struct {
	client   *Client
	mutation PatchMutation
}

// Set merges fields into the patch's set operation.
func (p *Patch) Set(fields map[string]any) *Patch {
	if p.mutation.Set == nil {
		p.mutation.Set = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		p.mutation.Set[k] = v
	}
	return p
}

// Unset removes the named fields.
func (p *Patch) Unset(names ...string) *Patch {
	p.mutation.Unset = append(p.mutation.Unset, names...)
	return p
}

// Mutation returns the wire form of the patch.
func (p *Patch) Mutation() Mutation {
	m := p.mutation
	return Mutation{Patch: &m}
}

// Commit sends the patch and returns the updated document.
func (p *Patch) Commit(ctx context.Context) (models.Document, error) {
	if p.mutation.ID == "" {
		return nil, fmt.Errorf("patch: document id is required")
	}
	resp, err := p.client.Mutate(ctx, []Mutation{p.Mutation()})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &APIError{Status: 404, Code: "documentNotFoundError", Message: "document " + p.mutation.ID + " not found"}
	}
	return resp.Results[0].Document, nil
}
