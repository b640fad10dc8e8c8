// Package serialize converts arbitrary values, including provider SDK
// response objects, into JSON-safe data composed only of primitives,
// slices and string-keyed maps.
//
// The conversion is a closed decision procedure applied recursively:
// primitives pass through, raw JSON and structured-dump capable values are
// decoded, sequences and mappings convert element-wise, structs convert to
// maps of their exported fields, and anything else falls back to its string
// representation. The string fallback is defined behavior for unknown
// types, not an error path; Value never panics and never fails.
package serialize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// rawJSONer is implemented by provider SDK response types, which retain the
// raw wire JSON they were decoded from. Decoding that JSON is the most
// faithful structured dump available for such values.
type rawJSONer interface {
	RawJSON() string
}

// Value returns v converted to JSON-safe data: string, bool, float64/int
// kinds, nil, []any and map[string]any, nested arbitrarily.
func Value(v any) any {
	if v == nil {
		return nil
	}

	switch t := v.(type) {
	case string:
		return t
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return v
	case json.RawMessage:
		return decodeRaw(string(t), v)
	case []byte:
		return string(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Value(item)
		}
		return out
	}

	if r, ok := v.(rawJSONer); ok {
		if raw := strings.TrimSpace(r.RawJSON()); raw != "" {
			return decodeRaw(raw, v)
		}
	}

	return reflectValue(reflect.ValueOf(v))
}

// decodeRaw decodes a raw JSON document and recursively serializes the
// result. Malformed documents degrade to the string form of orig.
func decodeRaw(raw string, orig any) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return fmt.Sprint(orig)
	}
	return Value(decoded)
}

func reflectValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Value(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = Value(rv.Index(i).Interface())
		}
		return out

	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Value(iter.Value().Interface())
		}
		return out

	case reflect.Struct:
		return structValue(rv)

	default:
		return fmt.Sprint(rv.Interface())
	}
}

// structValue converts a struct to a map of its exported fields, honoring
// json tags for naming. Structs with no usable fields (time.Time and
// friends) degrade to their string representation.
func structValue(rv reflect.Value) any {
	rt := rv.Type()
	out := make(map[string]any)
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = Value(rv.Field(i).Interface())
	}
	if len(out) == 0 {
		return fmt.Sprint(rv.Interface())
	}
	return out
}
