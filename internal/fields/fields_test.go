package fields

import (
	"errors"
	"reflect"
	"testing"
)

func TestDeriveAlias(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"seo title", "seoTitle"},
		{"title", "title"},
		{"author->name", "authorName"},
		{"meta.description text", "metaDescriptionText"},
		{"seo  title", "seoTitle"},
		{"alreadyCamel", "alreadyCamel"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DeriveAlias(tt.in); got != tt.want {
			t.Errorf("DeriveAlias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueries(t *testing.T) {
	if got, want := TypeQuery("post"), `*[_type == "post"]`; got != want {
		t.Fatalf("TypeQuery = %q, want %q", got, want)
	}
	if got, want := IDQuery(`a"b`), `*[_id == "a\"b"]`; got != want {
		t.Fatalf("IDQuery = %q, want %q", got, want)
	}
	if got := ListQuery("post", nil); got != `*[_type == "post"]` {
		t.Fatalf("ListQuery without fields = %q", got)
	}
	got := ListQuery("post", []string{"title", "seo title", "author->name"})
	want := `*[_type == "post"]{"title":title,"seoTitle":seo title,"authorName":author->name}`
	if got != want {
		t.Fatalf("ListQuery = %q, want %q", got, want)
	}
}

func TestFromPositional(t *testing.T) {
	got, err := FromPositional([]string{"title", "year"}, []any{"Dune", 1965})
	if err != nil {
		t.Fatalf("FromPositional: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"title": "Dune", "year": 1965}) {
		t.Fatalf("unexpected map: %#v", got)
	}

	got, err = FromPositional([]string{"title"}, "solo")
	if err != nil || got["title"] != "solo" {
		t.Fatalf("scalar value: got %#v, err %v", got, err)
	}

	got, err = FromPositional([]string{"a", "b"}, []string{"x", "y"})
	if err != nil || got["b"] != "y" {
		t.Fatalf("string slice: got %#v, err %v", got, err)
	}
}

func TestFromPositionalErrors(t *testing.T) {
	_, err := FromPositional([]string{}, []any{"x"})
	if !errors.Is(err, ErrNoFieldNames) {
		t.Fatalf("expected ErrNoFieldNames, got %v", err)
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}

	_, err = FromPositional([]string{"a", "b"}, []any{"x"})
	if !errors.Is(err, ErrFieldCountMismatch) || !errors.As(err, &cfgErr) {
		t.Fatalf("expected count mismatch configuration error, got %v", err)
	}

	for _, values := range []any{
		map[string]any{"a": "x", "b": "y"},
		map[string]string{"a": "x"},
	} {
		_, err = FromPositional([]string{"a", "b"}, values)
		if !errors.Is(err, ErrNotPositional) || !errors.As(err, &cfgErr) {
			t.Fatalf("%T: expected ErrNotPositional configuration error, got %v", values, err)
		}
	}
}

func TestFromValue(t *testing.T) {
	type book struct {
		Title string `json:"title"`
		Pages int    `json:"pages"`
	}

	src := map[string]any{"title": "Dune"}
	got, err := FromValue(src)
	if err != nil || got["title"] != "Dune" {
		t.Fatalf("map: got %#v, err %v", got, err)
	}
	got["title"] = "changed"
	if src["title"] != "Dune" {
		t.Fatal("FromValue must copy the input map")
	}

	got, err = FromValue(map[string]string{"a": "b"})
	if err != nil || got["a"] != "b" {
		t.Fatalf("string map: got %#v, err %v", got, err)
	}

	got, err = FromValue(&book{Title: "Emma", Pages: 474})
	if err != nil || got["title"] != "Emma" || got["pages"] != float64(474) {
		t.Fatalf("struct: got %#v, err %v", got, err)
	}

	got, err = FromValue(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("nil: got %#v, err %v", got, err)
	}

	if _, err := FromValue(42); !errors.Is(err, ErrNotMapping) {
		t.Fatalf("expected ErrNotMapping, got %v", err)
	}
}

func TestParseDelimited(t *testing.T) {
	tests := []struct {
		name string
		line string
		sep  rune
		want []string
	}{
		{name: "simple", line: "a,b,c", want: []string{"a", "b", "c"}},
		{name: "quoted separator", line: `"Smith, J",42`, want: []string{"Smith, J", "42"}},
		{name: "escaped quote", line: `"say ""hi""",x`, want: []string{`say "hi"`, "x"}},
		{name: "stray quote", line: `5" screen,ok`, want: []string{`5" screen`, "ok"}},
		{name: "semicolon", line: "a;b", sep: ';', want: []string{"a", "b"}},
		{name: "trailing newline", line: "a,b\r\n", want: []string{"a", "b"}},
		{name: "empty", line: "", want: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDelimited(tt.line, tt.sep)
			if err != nil {
				t.Fatalf("ParseDelimited: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseDelimited(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestSeparator(t *testing.T) {
	for in, want := range map[string]rune{"": ',', ",": ',', `\t`: '\t', ";": ';', "|": '|'} {
		got, err := Separator(in)
		if err != nil || got != want {
			t.Fatalf("Separator(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := Separator("ab"); err == nil {
		t.Fatal("expected error for multi-character separator")
	}
}
