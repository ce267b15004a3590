package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sanitykit/internal/api"
	"sanitykit/internal/models"
	"sanitykit/internal/query"
	"sanitykit/internal/store"
)

// Mutation result operations.
const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// store-owned fields a patch may not touch.
var protectedFields = map[string]struct{}{
	models.FieldID:        {},
	models.FieldRev:       {},
	models.FieldCreatedAt: {},
	models.FieldUpdatedAt: {},
}

// DocumentService applies mutations and answers queries for one store.
type DocumentService struct {
	store store.DocumentStore
	now   func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(st store.DocumentStore, now func() time.Time) *DocumentService {
	if now == nil {
		now = time.Now
	}
	return &DocumentService{store: st, now: now}
}

// Mutate applies every mutation in one transaction. Any failure rolls back
// the whole request.
func (s *DocumentService) Mutate(ctx context.Context, dataset string, req api.MutateRequest, returnDocuments bool) (api.MutateResponse, error) {
	resp := api.MutateResponse{TransactionID: strings.TrimSpace(req.TransactionID), Results: []api.MutationResult{}}
	if resp.TransactionID == "" {
		resp.TransactionID = uuid.NewString()
	}
	if len(req.Mutations) == 0 {
		return resp, badRequest(fmt.Errorf("mutations are required"))
	}

	now := s.now().UTC()
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		for i, m := range req.Mutations {
			results, err := s.apply(tx, dataset, m, now)
			if err != nil {
				return fmt.Errorf("mutation %d: %w", i, err)
			}
			resp.Results = append(resp.Results, results...)
		}
		return nil
	})
	if err != nil {
		return api.MutateResponse{}, err
	}

	resp.DocumentIDs = make([]string, 0, len(resp.Results))
	for i := range resp.Results {
		resp.DocumentIDs = append(resp.DocumentIDs, resp.Results[i].ID)
		if !returnDocuments {
			resp.Results[i].Document = nil
		}
	}
	return resp, nil
}

func (s *DocumentService) apply(tx *store.Tx, dataset string, m api.Mutation, now time.Time) ([]api.MutationResult, error) {
	set := 0
	if m.Create != nil {
		set++
	}
	if m.Patch != nil {
		set++
	}
	if m.Delete != nil {
		set++
	}
	if set != 1 {
		return nil, badRequest(fmt.Errorf("exactly one of create, patch or delete is required"))
	}

	switch {
	case m.Create != nil:
		doc, err := s.create(tx, dataset, m.Create, now)
		if err != nil {
			return nil, err
		}
		return []api.MutationResult{{ID: doc.ID(), Operation: opCreate, Document: doc}}, nil
	case m.Patch != nil:
		doc, err := s.patch(tx, dataset, *m.Patch, now)
		if err != nil {
			return nil, err
		}
		return []api.MutationResult{{ID: doc.ID(), Operation: opUpdate, Document: doc}}, nil
	default:
		return s.delete(tx, dataset, *m.Delete)
	}
}

func (s *DocumentService) create(tx *store.Tx, dataset string, in models.Document, now time.Time) (models.Document, error) {
	doc := in.Clone()
	if doc.Type() == "" {
		return nil, mutationError(http.StatusBadRequest, fmt.Errorf("document is missing %s", models.FieldType))
	}
	if raw, present := doc[models.FieldID]; present && doc.ID() == "" && raw != nil {
		return nil, mutationError(http.StatusBadRequest, fmt.Errorf("%s must be a string", models.FieldID))
	}
	if doc.ID() == "" {
		doc[models.FieldID] = uuid.NewString()
	}

	created, err := tx.Insert(dataset, doc, now)
	if errors.Is(err, store.ErrConflict) {
		return nil, mutationError(http.StatusConflict, fmt.Errorf("document %q already exists", doc.ID()))
	}
	if err != nil {
		return nil, storeError(err)
	}
	return created, nil
}

func (s *DocumentService) patch(tx *store.Tx, dataset string, p api.PatchMutation, now time.Time) (models.Document, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, badRequest(fmt.Errorf("patch id is required"))
	}
	doc, err := tx.Get(dataset, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound(errTypeDocumentNotFound, fmt.Errorf("document %q not found", id))
	}
	if err != nil {
		return nil, storeError(err)
	}

	keys := make([]string, 0, len(p.Set))
	for k := range p.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := setPath(doc, k, p.Set[k]); err != nil {
			return nil, mutationError(http.StatusBadRequest, err)
		}
	}
	for _, k := range p.Unset {
		if err := unsetPath(doc, k); err != nil {
			return nil, mutationError(http.StatusBadRequest, err)
		}
	}

	updated, err := tx.Replace(dataset, doc, now)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

func (s *DocumentService) delete(tx *store.Tx, dataset string, d api.DeleteMutation) ([]api.MutationResult, error) {
	id := strings.TrimSpace(d.ID)
	src := strings.TrimSpace(d.Query)
	if (id == "") == (src == "") {
		return nil, badRequest(fmt.Errorf("delete needs exactly one of id or query"))
	}

	if id != "" {
		existed, err := tx.Delete(dataset, id)
		if err != nil {
			return nil, storeError(err)
		}
		if !existed {
			return []api.MutationResult{}, nil
		}
		return []api.MutationResult{{ID: id, Operation: opDelete}}, nil
	}

	q, err := query.Parse(src)
	if err != nil {
		return nil, queryParseError(err)
	}
	if err := q.CheckParams(d.Params); err != nil {
		return nil, queryParseError(err)
	}
	docs, err := tx.List(dataset, documentFilter(q, d.Params))
	if err != nil {
		return nil, storeError(err)
	}
	resolve := resolver(func(id string) (models.Document, error) { return tx.Get(dataset, id) })

	results := []api.MutationResult{}
	for _, doc := range docs {
		ok, err := q.Match(doc, d.Params, resolve)
		if err != nil {
			return nil, queryParseError(err)
		}
		if !ok {
			continue
		}
		if _, err := tx.Delete(dataset, doc.ID()); err != nil {
			return nil, storeError(err)
		}
		results = append(results, api.MutationResult{ID: doc.ID(), Operation: opDelete})
	}
	return results, nil
}

// Query evaluates src against the dataset.
func (s *DocumentService) Query(ctx context.Context, dataset, src string, params map[string]any) (any, error) {
	q, err := query.Parse(src)
	if err != nil {
		return nil, queryParseError(err)
	}
	docs, err := s.store.Documents(ctx, dataset, documentFilter(q, params))
	if err != nil {
		return nil, storeError(err)
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, doc)
	}
	resolve := resolver(func(id string) (models.Document, error) { return s.store.Document(ctx, dataset, id) })

	result, err := q.Evaluate(rows, params, resolve)
	if err != nil {
		return nil, queryParseError(err)
	}
	return result, nil
}

// documentFilter narrows the SQL listing using equality conditions the
// query pins on _type or _id.
func documentFilter(q *query.Query, params map[string]any) store.DocumentFilter {
	var filter store.DocumentFilter
	if v, ok := q.Equality(models.FieldType, params); ok {
		if typ, isString := v.(string); isString {
			filter.Type = typ
		}
	}
	if v, ok := q.Equality(models.FieldID, params); ok {
		if id, isString := v.(string); isString {
			filter.IDs = []string{id}
		}
	}
	return filter
}

func resolver(get func(id string) (models.Document, error)) query.Resolver {
	return func(id string) (map[string]any, bool) {
		doc, err := get(id)
		if err != nil {
			return nil, false
		}
		return doc, true
	}
}

func splitFieldPath(path string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(path), ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", path)
		}
	}
	if _, ok := protectedFields[parts[0]]; ok {
		return nil, fmt.Errorf("field %s cannot be patched", parts[0])
	}
	return parts, nil
}

// setPath assigns value at a dotted path, creating intermediate objects.
func setPath(doc map[string]any, path string, value any) error {
	parts, err := splitFieldPath(path)
	if err != nil {
		return err
	}
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		switch next := cur[p].(type) {
		case map[string]any:
			cur = next
		case nil:
			created := map[string]any{}
			cur[p] = created
			cur = created
		default:
			return fmt.Errorf("cannot set %s: %s is not an object", path, p)
		}
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// unsetPath removes the value at a dotted path. Missing paths are ignored.
func unsetPath(doc map[string]any, path string) error {
	parts, err := splitFieldPath(path)
	if err != nil {
		return err
	}
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
	return nil
}
