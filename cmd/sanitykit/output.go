package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"sanitykit/internal/format"
	"sanitykit/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
	stdin           io.Reader        = os.Stdin
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeIDs(ids []string) error {
	for _, id := range ids {
		if err := writePlain("%s\n", id); err != nil {
			return err
		}
	}
	return nil
}

// writeDocuments prints one line per document: id, type, then the remaining
// fields sorted by name.
func writeDocuments(docs []models.Document) error {
	for _, doc := range docs {
		if err := writePlain("%s\n", formatDocumentLine(doc)); err != nil {
			return err
		}
	}
	return nil
}

func formatDocumentLine(doc models.Document) string {
	parts := make([]string, 0, len(doc)+2)
	if id := doc.ID(); id != "" {
		parts = append(parts, id)
	}
	if typ := doc.Type(); typ != "" {
		parts = append(parts, "["+typ+"]")
	}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		if models.IsSystemField(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+"="+formatValue(doc[key]))
	}
	return strings.Join(parts, " ")
}

// formatValue renders scalars as-is and nested values as compact JSON.
func formatValue(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprintf("%v", v)
}
