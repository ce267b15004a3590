package gateway

import (
	"context"
	"fmt"
	"strings"

	"sanitykit/internal/api"
	"sanitykit/internal/fields"
	"sanitykit/internal/models"
)

// Fetch runs query against the store.
func (g *Gateway) Fetch(ctx context.Context, query string, params map[string]any) ([]models.Document, error) {
	docs, err := g.store.Fetch(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return docs, nil
}

// ListAll fetches every document of schemaType. With selectFields set, each
// result is projected to those fields under camelCase aliases.
func (g *Gateway) ListAll(ctx context.Context, schemaType string, selectFields []string) ([]models.Document, error) {
	if strings.TrimSpace(schemaType) == "" {
		return nil, fields.NewConfigurationError("list", fields.ErrNoSchemaType)
	}
	return g.Fetch(ctx, fields.ListQuery(schemaType, selectFields), nil)
}

// DeleteAll deletes every document of schemaType. It cannot be undone.
func (g *Gateway) DeleteAll(ctx context.Context, schemaType string) error {
	if strings.TrimSpace(schemaType) == "" {
		return fields.NewConfigurationError("delete all", fields.ErrNoSchemaType)
	}
	if err := g.store.Delete(ctx, api.Selector{Query: fields.TypeQuery(schemaType)}); err != nil {
		return fmt.Errorf("delete all %s: %w", schemaType, err)
	}
	g.logger.Info("documents deleted", "type", schemaType)
	return nil
}

// DeleteByID deletes one document.
func (g *Gateway) DeleteByID(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNoDocumentID
	}
	if err := g.store.Delete(ctx, api.Selector{ID: id}); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	g.logger.Info("document deleted", "id", id)
	return nil
}
