// Package shape applies the output pruning rules to extracted objects.
//
// Rules for one object:
//   - an optional field whose value is null is omitted; a required one keeps
//     its null
//   - an object value is cleaned recursively (nulls removed at every depth)
//     and dropped when nothing is left, optional or not
//   - an array value has each element cleaned in place; an empty array is
//     dropped only when the field is optional
//   - every other value is kept as is
//
// Applying Object to its own output changes nothing.
package shape

// Entry is one raw field of an object before shaping.
type Entry struct {
	Key      string
	Value    any
	Optional bool
}

// Object shapes entries into the output object.
func Object(entries []Entry) map[string]any {
	out := make(map[string]any, len(entries))

	for _, e := range entries {
		switch v := e.Value.(type) {
		case nil:
			if !e.Optional {
				out[e.Key] = nil
			}

		case map[string]any:
			if cleaned := Clean(v); cleaned != nil {
				out[e.Key] = cleaned
			}

		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				items[i] = Clean(item)
			}
			if len(items) > 0 || !e.Optional {
				out[e.Key] = items
			}

		default:
			out[e.Key] = v
		}
	}

	return out
}

// Clean removes nulls from v recursively. An object left empty becomes nil;
// arrays drop nil elements. Scalars are returned unchanged.
func Clean(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if c := Clean(child); c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out

	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if c := Clean(child); c != nil {
				out = append(out, c)
			}
		}
		return out

	default:
		return v
	}
}
