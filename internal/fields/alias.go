// Package fields maps caller input onto named document fields and builds the
// query strings used to select documents.
package fields

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var aliasSeparator = regexp.MustCompile(`[^A-Za-z0-9]`)

// DeriveAlias turns a field expression such as "seo title" or "author->name"
// into a camelCase projection alias. Expressions made of a single token are
// returned unchanged.
func DeriveAlias(expr string) string {
	tokens := aliasSeparator.Split(expr, -1)
	if len(tokens) <= 1 {
		return expr
	}

	var sb strings.Builder
	sb.WriteString(tokens[0])
	for _, tok := range tokens[1:] {
		sb.WriteString(upperFirst(tok))
	}
	return sb.String()
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// TypeQuery selects every document of schemaType.
func TypeQuery(schemaType string) string {
	return "*[_type == " + strconv.Quote(schemaType) + "]"
}

// IDQuery selects the single document with the given id.
func IDQuery(id string) string {
	return "*[_id == " + strconv.Quote(id) + "]"
}

// Projection renders {"alias":expr,...} for the given field expressions, in
// order. Nil or empty input yields "".
func Projection(exprs []string) string {
	if len(exprs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		parts = append(parts, strconv.Quote(DeriveAlias(expr))+":"+expr)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ListQuery is TypeQuery followed by the projection of selectFields.
func ListQuery(schemaType string, selectFields []string) string {
	return TypeQuery(schemaType) + Projection(selectFields)
}
