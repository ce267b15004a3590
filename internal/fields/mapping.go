package fields

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// FromPositional zips values to names by index. A scalar value counts as a
// one-element list. Names must be non-empty and match the value count.
// Mappings are rejected since their values have no order.
func FromPositional(names []string, values any) (map[string]any, error) {
	if len(names) == 0 {
		return nil, configErr("map fields", ErrNoFieldNames, "")
	}
	if values != nil && reflect.TypeOf(values).Kind() == reflect.Map {
		return nil, configErr("map fields", ErrNotPositional, "got %T", values)
	}

	list := positional(values)
	if len(list) != len(names) {
		return nil, configErr("map fields", ErrFieldCountMismatch, "%d names, %d values", len(names), len(list))
	}

	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = list[i]
	}
	return out, nil
}

func positional(values any) []any {
	switch v := values.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []byte:
		return []any{string(v)}
	}

	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{values}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// FromValue coerces an associative value into a field map. Maps are copied;
// structs go through their JSON encoding. Nil yields an empty map.
func FromValue(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	if m, err := cast.ToStringMapE(v); err == nil {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	if rv.Kind() != reflect.Struct {
		return nil, configErr("map fields", ErrNotMapping, "got %T", v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, configErr("map fields", ErrNotMapping, "got %T", v)
	}
	return out, nil
}

// ParseDelimited splits one line on sep with CSV quoting rules. Stray quotes
// are tolerated. A zero sep means comma; an empty line yields one empty field.
func ParseDelimited(line string, sep rune) ([]string, error) {
	if sep == 0 {
		sep = ','
	}
	line = strings.TrimRight(line, "\r\n")

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []string{""}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse delimited line: %w", err)
	}
	return record, nil
}

// Separator converts a flag value such as "," or "\t" into a rune.
func Separator(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, configErr("separator", fmt.Errorf("want a single character, got %q", s), "")
	}
	if runes[0] == '"' || runes[0] == '\r' || runes[0] == '\n' {
		return 0, configErr("separator", fmt.Errorf("%q cannot be used as a separator", s), "")
	}
	return runes[0], nil
}
