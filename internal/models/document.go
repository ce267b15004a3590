package models

import "strings"

const (
	FieldID        = "_id"
	FieldType      = "_type"
	FieldRef       = "_ref"
	FieldRev       = "_rev"
	FieldCreatedAt = "_createdAt"
	FieldUpdatedAt = "_updatedAt"

	ReferenceType = "reference"
)

// Document is a field-structured record held by the document store.
// It always carries a _type and, once persisted, an _id.
type Document map[string]any

// ID returns the system-assigned id, or "" before the document is persisted.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Type returns the schema type name.
func (d Document) Type() string {
	typ, _ := d[FieldType].(string)
	return typ
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// IsSystemField reports whether a field name is owned by the store.
func IsSystemField(name string) bool {
	return strings.HasPrefix(name, "_")
}

// NewReference builds a reference field pointing at targetID.
func NewReference(targetID string) map[string]any {
	return map[string]any{
		FieldType: ReferenceType,
		FieldRef:  targetID,
	}
}

// NewImageField builds an image field linking an uploaded asset.
func NewImageField(imageType, assetID string) map[string]any {
	if strings.TrimSpace(imageType) == "" {
		imageType = DefaultImageType
	}
	return map[string]any{
		FieldType: imageType,
		"asset": map[string]any{
			FieldRef: assetID,
		},
	}
}
