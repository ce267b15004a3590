package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sanitykit/internal/models"
)

const documentColumns = "id, body"

// DocumentStore is the document persistence the devstore server needs.
type DocumentStore interface {
	InTx(ctx context.Context, fn func(*Tx) error) error
	Document(ctx context.Context, dataset, id string) (models.Document, error)
	Documents(ctx context.Context, dataset string, filter DocumentFilter) ([]models.Document, error)
}

var _ DocumentStore = (*Store)(nil)

// DocumentFilter narrows a document listing. Empty fields match everything.
type DocumentFilter struct {
	Type string
	IDs  []string
}

// Tx is a unit of work over documents.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Document returns one document.
func (s *Store) Document(ctx context.Context, dataset, id string) (models.Document, error) {
	return getDocument(ctx, s.db, dataset, id)
}

// Documents lists documents in creation order.
func (s *Store) Documents(ctx context.Context, dataset string, filter DocumentFilter) ([]models.Document, error) {
	return listDocuments(ctx, s.db, dataset, filter)
}

// Get returns one document.
func (t *Tx) Get(dataset, id string) (models.Document, error) {
	return getDocument(t.ctx, t.tx, dataset, id)
}

// List lists documents in creation order.
func (t *Tx) List(dataset string, filter DocumentFilter) ([]models.Document, error) {
	return listDocuments(t.ctx, t.tx, dataset, filter)
}

// Insert stores a new document, stamping _rev and timestamps. It fails with
// ErrConflict when the id is taken.
func (t *Tx) Insert(dataset string, doc models.Document, now time.Time) (models.Document, error) {
	if doc.ID() == "" || doc.Type() == "" {
		return nil, fmt.Errorf("document needs %s and %s", models.FieldID, models.FieldType)
	}

	var exists int
	err := t.tx.QueryRowContext(t.ctx, "SELECT 1 FROM documents WHERE dataset = ? AND id = ?", dataset, doc.ID()).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID(), ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	out, err := stamp(doc, now, true)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	ts := formatTime(now)
	_, err = t.tx.ExecContext(t.ctx,
		"INSERT INTO documents (dataset, id, type, rev, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		dataset, out.ID(), out.Type(), out[models.FieldRev], string(body), ts, ts)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replace overwrites an existing document with a new revision.
func (t *Tx) Replace(dataset string, doc models.Document, now time.Time) (models.Document, error) {
	out, err := stamp(doc, now, false)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE documents SET type = ?, rev = ?, body = ?, updated_at = ? WHERE dataset = ? AND id = ?",
		out.Type(), out[models.FieldRev], string(body), formatTime(now), dataset, out.ID())
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("document %s: %w", out.ID(), ErrNotFound)
	}
	return out, nil
}

// Delete removes a document and reports whether it existed.
func (t *Tx) Delete(dataset, id string) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM documents WHERE dataset = ? AND id = ?", dataset, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getDocument(ctx context.Context, q queryer, dataset, id string) (models.Document, error) {
	var docID, body string
	err := q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE dataset = ? AND id = ?", dataset, id).Scan(&docID, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(docID, body)
}

func listDocuments(ctx context.Context, q queryer, dataset string, filter DocumentFilter) ([]models.Document, error) {
	where := []string{"dataset = ?"}
	args := []any{dataset}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		where = append(where, "id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	stmt := "SELECT " + documentColumns + " FROM documents WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at, rowid"
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func decodeDocument(id, body string) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

func stamp(doc models.Document, now time.Time, created bool) (models.Document, error) {
	rev, err := NewRevision()
	if err != nil {
		return nil, err
	}
	out := doc.Clone()
	ts := now.UTC().Format(time.RFC3339)
	if created || out[models.FieldCreatedAt] == nil {
		out[models.FieldCreatedAt] = ts
	}
	out[models.FieldUpdatedAt] = ts
	out[models.FieldRev] = rev
	return out, nil
}

// dbTimeLayout is fixed width so stored timestamps sort as strings.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}
