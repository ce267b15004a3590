package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sanitykit/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertDoc(t *testing.T, st *Store, dataset string, doc models.Document, now time.Time) models.Document {
	t.Helper()
	var out models.Document
	err := st.InTx(context.Background(), func(tx *Tx) error {
		var err error
		out, err = tx.Insert(dataset, doc, now)
		return err
	})
	if err != nil {
		t.Fatalf("insert %s: %v", doc.ID(), err)
	}
	return out
}

func TestOpenAppliesMigrations(t *testing.T) {
	st := openTestStore(t)

	status, err := st.MigrationStatus()
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if status.CurrentVersion != 2 || status.AvailableVersion != 2 {
		t.Fatalf("unexpected versions: %+v", status)
	}
	if len(status.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %+v", status.Pending)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInsertStampsSystemFields(t *testing.T) {
	st := openTestStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	got := insertDoc(t, st, "production", models.Document{"_id": "a", "_type": "post", "title": "Hello"}, now)
	if got[models.FieldCreatedAt] != "2024-03-01T10:00:00Z" || got[models.FieldUpdatedAt] != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected timestamps: %v", got)
	}
	rev, _ := got[models.FieldRev].(string)
	if len(rev) != revisionLength {
		t.Fatalf("unexpected revision %q", rev)
	}

	stored, err := st.Document(context.Background(), "production", "a")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored["title"] != "Hello" || stored[models.FieldRev] != rev {
		t.Fatalf("unexpected stored document: %v", stored)
	}
}

func TestInsertConflictAndValidation(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()
	insertDoc(t, st, "production", models.Document{"_id": "a", "_type": "post"}, now)

	err := st.InTx(context.Background(), func(tx *Tx) error {
		_, err := tx.Insert("production", models.Document{"_id": "a", "_type": "post"}, now)
		return err
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	err = st.InTx(context.Background(), func(tx *Tx) error {
		_, err := tx.Insert("production", models.Document{"_id": "b"}, now)
		return err
	})
	if err == nil {
		t.Fatal("expected error for missing _type")
	}

	// Same id in another dataset is a different document.
	insertDoc(t, st, "staging", models.Document{"_id": "a", "_type": "post"}, now)
}

func TestReplaceKeepsCreatedAt(t *testing.T) {
	st := openTestStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := insertDoc(t, st, "production", models.Document{"_id": "a", "_type": "post", "title": "one"}, created)

	updated := first.Clone()
	updated["title"] = "two"
	later := created.Add(time.Hour)
	var out models.Document
	err := st.InTx(context.Background(), func(tx *Tx) error {
		var err error
		out, err = tx.Replace("production", updated, later)
		return err
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if out[models.FieldCreatedAt] != "2024-01-01T00:00:00Z" || out[models.FieldUpdatedAt] != "2024-01-01T01:00:00Z" {
		t.Fatalf("unexpected timestamps: %v", out)
	}
	if out[models.FieldRev] == first[models.FieldRev] {
		t.Fatal("expected a new revision")
	}

	err = st.InTx(context.Background(), func(tx *Tx) error {
		_, err := tx.Replace("production", models.Document{"_id": "missing", "_type": "post"}, later)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentsOrderAndFilter(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertDoc(t, st, "production", models.Document{"_id": "c", "_type": "post"}, base)
	insertDoc(t, st, "production", models.Document{"_id": "a", "_type": "author"}, base.Add(time.Second))
	insertDoc(t, st, "production", models.Document{"_id": "b", "_type": "post"}, base.Add(2*time.Second))
	insertDoc(t, st, "staging", models.Document{"_id": "z", "_type": "post"}, base)

	tests := []struct {
		name   string
		filter DocumentFilter
		want   []string
	}{
		{name: "all", want: []string{"c", "a", "b"}},
		{name: "by type", filter: DocumentFilter{Type: "post"}, want: []string{"c", "b"}},
		{name: "by ids", filter: DocumentFilter{IDs: []string{"b", "a"}}, want: []string{"a", "b"}},
		{name: "no match", filter: DocumentFilter{Type: "comment"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := st.Documents(context.Background(), "production", tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(docs) != len(tt.want) {
				t.Fatalf("expected %d docs, got %d", len(tt.want), len(docs))
			}
			for i, doc := range docs {
				if doc.ID() != tt.want[i] {
					t.Fatalf("position %d: expected %s, got %s", i, tt.want[i], doc.ID())
				}
			}
		})
	}
}

func TestDeleteAndRollback(t *testing.T) {
	st := openTestStore(t)
	insertDoc(t, st, "production", models.Document{"_id": "a", "_type": "post"}, time.Now())

	boom := errors.New("boom")
	err := st.InTx(context.Background(), func(tx *Tx) error {
		if _, err := tx.Delete("production", "a"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := st.Document(context.Background(), "production", "a"); err != nil {
		t.Fatalf("expected rollback to keep document: %v", err)
	}

	var existed bool
	err = st.InTx(context.Background(), func(tx *Tx) error {
		var err error
		existed, err = tx.Delete("production", "a")
		return err
	})
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := st.Document(context.Background(), "production", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateAssetSharesBlobs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	blob := models.Blob{SHA256: "abc", SHA1: "def", SizeBytes: 5, StorageBackend: "local_cas", BlobKey: "sha256/ab/c/abc"}

	asset := models.Asset{ID: "file-def-txt", Type: models.FileAssetType, MimeType: "text/plain", Extension: "txt", Size: 5, SHA1Hash: "def"}
	stored, existed, err := st.CreateAsset(ctx, "production", asset, blob, now)
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if existed || stored.ID != asset.ID || stored.CreatedAt != "2024-05-01T00:00:00Z" {
		t.Fatalf("unexpected asset: existed=%v %+v", existed, stored)
	}

	again, existed, err := st.CreateAsset(ctx, "production", asset, blob, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create asset again: %v", err)
	}
	if !existed || again.CreatedAt != stored.CreatedAt {
		t.Fatalf("expected existing asset, got existed=%v %+v", existed, again)
	}

	other := asset
	other.ID = "file-def-md"
	if _, _, err := st.CreateAsset(ctx, "production", other, blob, now); err != nil {
		t.Fatalf("create second asset: %v", err)
	}

	first, err := st.AssetFile(ctx, "production", asset.ID)
	if err != nil {
		t.Fatalf("asset file: %v", err)
	}
	second, err := st.AssetFile(ctx, "production", other.ID)
	if err != nil {
		t.Fatalf("asset file: %v", err)
	}
	if first.Blob.ID == "" || first.Blob.ID != second.Blob.ID {
		t.Fatalf("expected shared blob, got %q and %q", first.Blob.ID, second.Blob.ID)
	}
	if first.MimeType != "text/plain" || first.Blob.BlobKey != blob.BlobKey {
		t.Fatalf("unexpected asset file: %+v", first)
	}

	doc, err := st.Document(ctx, "production", asset.ID)
	if err != nil {
		t.Fatalf("asset document: %v", err)
	}
	if doc.Type() != models.FileAssetType || doc["sha1hash"] != "def" {
		t.Fatalf("unexpected asset document: %v", doc)
	}

	if _, err := st.AssetFile(ctx, "production", "file-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.BlobBySHA256(ctx, "abc"); err != nil {
		t.Fatalf("blob by sha256: %v", err)
	}
}

func TestGenerateIDRetries(t *testing.T) {
	calls := 0
	id, err := GenerateID("bl", func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if calls != 3 || len(id) != len("bl-")+idHashLength {
		t.Fatalf("unexpected id %q after %d calls", id, calls)
	}

	if _, err := GenerateID("bl", func(string) (bool, error) { return true, nil }); err == nil {
		t.Fatal("expected exhaustion error")
	}
	if _, err := GenerateID("", nil); err == nil {
		t.Fatal("expected prefix error")
	}
}
