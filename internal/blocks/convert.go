package blocks

import (
	"html"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

const (
	paragraphOpen  = "<p>"
	paragraphClose = "</p>"
	blockSeparator = "\n\n"
)

// TextToBlocks converts paragraph markup into blocks, one per </p>-delimited
// segment. Splitting is textual; a trailing empty segment still yields an
// empty block.
func TextToBlocks(text string) []Block {
	return defaultCodec.TextToBlocks(text)
}

// TextToBlocks converts paragraph markup into blocks. Keys are unique within
// the returned slice.
func (c *Codec) TextToBlocks(text string) []Block {
	decoded := strings.ReplaceAll(html.UnescapeString(text), paragraphOpen, "")
	segments := strings.Split(decoded, paragraphClose)

	keys := newKeySet(c.keys)
	out := make([]Block, 0, len(segments))
	for _, segment := range segments {
		out = append(out, c.makeBlock(keys, segment, StyleNormal))
	}
	return out
}

// BlocksToString flattens blocks to plain text, one paragraph per block,
// separated by a blank line. Elements that are not blocks, or have no
// children, contribute an empty paragraph. Non-list input yields "".
//
// Any slice or array is accepted. Elements may be Block, *Block or any map
// with string keys, such as decoded JSON or models.Document.
func BlocksToString(v any) string {
	var parts []string
	switch list := v.(type) {
	case []Block:
		parts = make([]string, 0, len(list))
		for _, b := range list {
			parts = append(parts, blockText(b))
		}
	case []any:
		parts = make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, itemText(item))
		}
	case string, []byte:
		return ""
	default:
		ok := eachElement(v, func(item any) {
			parts = append(parts, itemText(item))
		})
		if !ok {
			return ""
		}
	}
	return strings.Join(parts, blockSeparator)
}

// eachElement calls fn for every element of a slice or array and reports
// whether v was one.
func eachElement(v any, fn func(any)) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		fn(rv.Index(i).Interface())
	}
	return true
}

// stringMap converts any map with string keys to map[string]any.
func stringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func itemText(item any) string {
	switch b := item.(type) {
	case Block:
		return blockText(b)
	case *Block:
		if b == nil {
			return ""
		}
		return blockText(*b)
	}
	if m, ok := stringMap(item); ok {
		return mapText(m)
	}
	return ""
}

func blockText(b Block) string {
	if b.Type != BlockType || b.Children == nil {
		return ""
	}
	return joinSpanText(b)
}

func joinSpanText(b Block) string {
	var sb strings.Builder
	for _, span := range b.Children {
		sb.WriteString(span.Text)
	}
	return sb.String()
}

func mapText(m map[string]any) string {
	if typ, _ := m["_type"].(string); typ != BlockType {
		return ""
	}
	raw, ok := m["children"]
	if !ok || raw == nil {
		return ""
	}

	var sb strings.Builder
	eachElement(raw, func(child any) {
		sb.WriteString(childText(child))
	})
	return sb.String()
}

func childText(child any) string {
	switch c := child.(type) {
	case Span:
		return c.Text
	case *Span:
		if c == nil {
			return ""
		}
		return c.Text
	}
	if m, ok := stringMap(child); ok {
		return cast.ToString(m["text"])
	}
	return ""
}
