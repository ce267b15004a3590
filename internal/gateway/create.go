package gateway

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"sanitykit/internal/fields"
	"sanitykit/internal/models"
)

const maxLineBytes = 4 << 20

// Create stores one document of schemaType and returns its id.
//
// With fieldNames set, values is positional (a scalar counts as one value)
// and is zipped to the names; a mapping is rejected with
// fields.ErrNotPositional. With nil fieldNames, values must be a mapping.
// A non-nil empty fieldNames is a configuration error. schemaType always
// overrides a _type present in the input.
func (g *Gateway) Create(ctx context.Context, schemaType string, values any, fieldNames []string) (string, error) {
	doc, err := buildDocument(schemaType, values, fieldNames)
	if err != nil {
		return "", err
	}
	return g.create(ctx, doc)
}

// BatchCreate creates documents in input order and returns their ids. Every
// document is mapped before the first create is sent. When a create fails
// the ids created so far are returned with the error.
func (g *Gateway) BatchCreate(ctx context.Context, schemaType string, documents []any, fieldNames []string) ([]string, error) {
	if fieldNames != nil && len(fieldNames) == 0 {
		return nil, fields.NewConfigurationError("batch create", fields.ErrNoFieldNames)
	}

	docs := make([]models.Document, 0, len(documents))
	for i, values := range documents {
		doc, err := buildDocument(schemaType, values, fieldNames)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		id, err := g.create(ctx, doc)
		if id != "" {
			ids = append(ids, id)
		}
		if err != nil {
			return ids, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return ids, nil
}

// CreateFromDelimited creates one document from a delimited line. Fields
// may be quoted; sep 0 means comma.
func (g *Gateway) CreateFromDelimited(ctx context.Context, schemaType, line string, fieldNames []string, sep rune) (string, error) {
	doc, err := delimitedDocument(schemaType, line, fieldNames, sep)
	if err != nil {
		return "", err
	}
	return g.create(ctx, doc)
}

// BatchCreateFromFile creates one document per non-blank line of the file at
// path, in file order. The file is read incrementally.
func (g *Gateway) BatchCreateFromFile(ctx context.Context, schemaType, path string, fieldNames []string, sep rune) ([]string, error) {
	if len(fieldNames) == 0 {
		return nil, fields.NewConfigurationError("batch create from file", fields.ErrNoFieldNames)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ids := []string{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		doc, err := delimitedDocument(schemaType, line, fieldNames, sep)
		if err != nil {
			return ids, fmt.Errorf("line %d: %w", lineNo, err)
		}
		id, err := g.create(ctx, doc)
		if id != "" {
			ids = append(ids, id)
		}
		if err != nil {
			return ids, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return ids, fmt.Errorf("read import file: %w", err)
	}

	g.logger.Info("file imported", "path", path, "type", schemaType, "count", len(ids))
	return ids, nil
}

// create sends doc and waits on the pacer. The id is returned even when
// pacing is interrupted.
func (g *Gateway) create(ctx context.Context, doc models.Document) (string, error) {
	created, err := g.store.Create(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", doc.Type(), err)
	}
	id := created.ID()
	if id == "" {
		return "", fmt.Errorf("create %s: store returned no id", doc.Type())
	}
	g.logger.Debug("document created", "id", id, "type", doc.Type())

	return id, g.wait(ctx)
}

func buildDocument(schemaType string, values any, fieldNames []string) (models.Document, error) {
	if strings.TrimSpace(schemaType) == "" {
		return nil, fields.NewConfigurationError("create", fields.ErrNoSchemaType)
	}

	var (
		mapped map[string]any
		err    error
	)
	if fieldNames != nil {
		mapped, err = fields.FromPositional(fieldNames, values)
	} else {
		mapped, err = fields.FromValue(values)
	}
	if err != nil {
		return nil, err
	}

	doc := models.Document(mapped)
	doc[models.FieldType] = schemaType
	return doc, nil
}

func delimitedDocument(schemaType, line string, fieldNames []string, sep rune) (models.Document, error) {
	if len(fieldNames) == 0 {
		return nil, fields.NewConfigurationError("create from delimited", fields.ErrNoFieldNames)
	}
	values, err := fields.ParseDelimited(line, sep)
	if err != nil {
		return nil, err
	}
	return buildDocument(schemaType, values, fieldNames)
}
