package query

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Resolver looks up a referenced document by id.
type Resolver func(id string) (map[string]any, bool)

// Match reports whether doc satisfies every filter condition.
func (q *Query) Match(doc map[string]any, params map[string]any, resolve Resolver) (bool, error) {
	for _, cond := range q.Filter {
		want, err := cond.Value.resolve(params)
		if err != nil {
			return false, err
		}
		got := cond.Path.Lookup(doc, resolve)
		if equal(got, want) == cond.Negated {
			return false, nil
		}
	}
	return true, nil
}

// Project applies the projection to doc. Without one doc is returned as is.
func (q *Query) Project(doc map[string]any, resolve Resolver) map[string]any {
	if len(q.Projection) == 0 {
		return doc
	}
	out := make(map[string]any, len(q.Projection))
	for _, f := range q.Projection {
		if f.Spread {
			for k, v := range doc {
				out[k] = v
			}
			continue
		}
		out[f.Alias] = f.Path.Lookup(doc, resolve)
	}
	return out
}

// Evaluate filters and projects docs in order. With an index the result is
// the selected element or nil; otherwise it is a list.
func (q *Query) Evaluate(docs []map[string]any, params map[string]any, resolve Resolver) (any, error) {
	if err := q.CheckParams(params); err != nil {
		return nil, err
	}
	result := []any{}
	for _, doc := range docs {
		ok, err := q.Match(doc, params, resolve)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, q.Project(doc, resolve))
		}
	}
	if q.Index != nil {
		if *q.Index >= len(result) {
			return nil, nil
		}
		return result[*q.Index], nil
	}
	return result, nil
}

// CheckParams reports the first parameter the filter uses that params
// does not supply.
func (q *Query) CheckParams(params map[string]any) error {
	for _, cond := range q.Filter {
		if _, err := cond.Value.resolve(params); err != nil {
			return err
		}
	}
	return nil
}

// Equality returns the literal or parameter value a top-level field is
// required to equal, if the filter pins it.
func (q *Query) Equality(field string, params map[string]any) (any, bool) {
	for _, cond := range q.Filter {
		if cond.Negated || len(cond.Path) != 1 || cond.Path[0].Name != field {
			continue
		}
		v, err := cond.Value.resolve(params)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// Lookup walks the path through nested maps, resolving references at deref
// steps. Missing values yield nil.
func (p Path) Lookup(doc map[string]any, resolve Resolver) any {
	var cur any = doc
	for _, step := range p {
		if step.Deref {
			ref, _ := cur.(map[string]any)
			id, _ := ref["_ref"].(string)
			if id == "" || resolve == nil {
				return nil
			}
			target, ok := resolve(id)
			if !ok {
				return nil
			}
			cur = target
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[step.Name]
	}
	return cur
}

func (o Operand) resolve(params map[string]any) (any, error) {
	if o.Param == "" {
		return o.Literal, nil
	}
	v, ok := params[o.Param]
	if !ok {
		return nil, fmt.Errorf("%w: $%s", ErrMissingParam, o.Param)
	}
	return v, nil
}

// equal compares decoded JSON values, treating all numeric types alike.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
