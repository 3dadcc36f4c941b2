package spec

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
)

// Parse decodes a JSON spec document and builds its AST.
//
// Numbers are decoded as json.Number so literal values keep full float64
// precision. Any failure rejects the whole spec.
func Parse(data []byte) (*Spec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Msg: "decode json", Err: err}
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Msg: "trailing data after spec", Err: err}
	}
	return FromValue(v)
}

// FromValue builds a Spec from an already decoded JSON value.
//
// v must use the encoding/json data model (map[string]any, []any, string,
// bool, nil, and json.Number or float64 for numbers).
func FromValue(v any) (*Spec, error) {
	switch t := v.(type) {
	case map[string]any:
		obj, err := parseObject("", t)
		if err != nil {
			return nil, err
		}
		return &Spec{Kind: KindObject, Object: obj}, nil

	case []any:
		if len(t) == 0 {
			return &Spec{Kind: KindObject, Object: &ObjectSpec{Fields: map[string]Field{}}}, nil
		}
		arr, err := parseArray("[]", t)
		if err != nil {
			return nil, err
		}
		return &Spec{Kind: KindArray, Array: arr}, nil

	case string:
		lit, ok := parseQuoted(t)
		if !ok {
			// A bare selector has no field to hold its value.
			return &Spec{Kind: KindObject, Object: &ObjectSpec{Fields: map[string]Field{}}}, nil
		}
		return &Spec{Kind: KindLiteral, Literal: lit}, nil

	default:
		lit, err := parseScalar("", v)
		if err != nil {
			return nil, err
		}
		return &Spec{Kind: KindLiteral, Literal: lit}, nil
	}
}

func parseObject(path string, m map[string]any) (*ObjectSpec, error) {
	obj := &ObjectSpec{Fields: make(map[string]Field, len(m))}
	rawKeys := make(map[string]string, len(m))

	for _, key := range slices.Sorted(maps.Keys(m)) {
		val := m[key]
		if key == "$" {
			// Non-string scopes are ignored.
			s, ok := val.(string)
			if !ok {
				continue
			}
			sel, err := parseScopeSelector(joinPath(path, key), s)
			if err != nil {
				return nil, err
			}
			obj.Scope = &sel
			continue
		}

		name, optional := strings.CutSuffix(key, "?")
		fieldPath := joinPath(path, name)
		if prev, dup := rawKeys[name]; dup {
			return nil, parseErrorf(fieldPath, "keys %q and %q both name field %q", prev, key, name)
		}
		rawKeys[name] = key

		fs, err := parseField(fieldPath, val)
		if err != nil {
			return nil, err
		}
		obj.Fields[name] = Field{Spec: fs, Optional: optional}
	}

	return obj, nil
}

func parseArray(path string, items []any) (*ArraySpec, error) {
	m, ok := items[0].(map[string]any)
	if !ok {
		return nil, parseErrorf(path, "array spec item must be an object, got %T", items[0])
	}
	obj, err := parseObject(path, m)
	if err != nil {
		return nil, err
	}
	return &ArraySpec{Item: *obj}, nil
}

func parseField(path string, v any) (FieldSpec, error) {
	switch t := v.(type) {
	case string:
		if lit, ok := parseQuoted(t); ok {
			return FieldSpec{Kind: FieldLiteral, Literal: lit}, nil
		}
		return parseSelectorField(path, t)

	case map[string]any:
		obj, err := parseObject(path, t)
		if err != nil {
			return FieldSpec{}, err
		}
		return FieldSpec{Kind: FieldNested, Nested: obj}, nil

	case []any:
		if len(t) == 0 {
			return FieldSpec{Kind: FieldLiteral, Literal: &Literal{Kind: LiteralNull}}, nil
		}
		arr, err := parseArray(path+"[]", t)
		if err != nil {
			return FieldSpec{}, err
		}
		return FieldSpec{Kind: FieldNestedArray, Array: arr}, nil

	default:
		lit, err := parseScalar(path, v)
		if err != nil {
			return FieldSpec{}, err
		}
		return FieldSpec{Kind: FieldLiteral, Literal: lit}, nil
	}
}

// parseQuoted recognizes '...' and "..." string literals.
func parseQuoted(s string) (*Literal, bool) {
	t := strings.TrimSpace(s)
	if len(t) < 2 {
		return nil, false
	}
	first, last := t[0], t[len(t)-1]
	if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
		return &Literal{Kind: LiteralString, String: t[1 : len(t)-1]}, true
	}
	return nil, false
}

func parseScalar(path string, v any) (*Literal, error) {
	switch t := v.(type) {
	case nil:
		return &Literal{Kind: LiteralNull}, nil
	case bool:
		return &Literal{Kind: LiteralBool, Bool: t}, nil
	case float64:
		return &Literal{Kind: LiteralNumber, Number: t}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, &ParseError{Path: path, Msg: "invalid number literal " + t.String(), Err: err}
		}
		return &Literal{Kind: LiteralNumber, Number: f}, nil
	default:
		return nil, parseErrorf(path, "unsupported value of type %T", v)
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
