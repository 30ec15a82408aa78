package cachekey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Ordered marks a slice whose element order is significant and must be
// preserved in the encoded form. Plain slices are sorted element-wise
// before encoding, which is correct for filter sets but would corrupt
// keys for values like user-prioritized tag lists.
type Ordered []any

// Encode canonicalizes an arbitrary parameter value into a deterministic
// string. Map keys and struct fields are sorted alphabetically at every
// nesting level; slice elements are sorted by their encoded form (except
// Ordered slices, which keep caller order). Two parameter values that are
// deep-equal up to key order and slice order encode identically.
func Encode(params any) string {
	return encodeValue(reflect.ValueOf(params))
}

// Digest returns the xxhash64 hex digest of the canonical encoding,
// suitable as a compact key segment.
func Digest(params any) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(Encode(params)))
}

func encodeValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return encodeValue(rv.Elem())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "nil"
		}
		if rv.Type() == reflect.TypeOf(Ordered(nil)) {
			return encodeOrdered(rv)
		}
		return encodeSlice(rv)

	case reflect.Map:
		if rv.IsNil() {
			return "nil"
		}
		return encodeMap(rv)

	case reflect.Struct:
		return encodeStruct(rv)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", rv.Interface())

	default:
		return jsonFallback(rv)
	}
}

// encodeSlice sorts elements by their encoded form so that equivalent
// sets produce identical encodings regardless of construction order.
func encodeSlice(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = encodeValue(rv.Index(i))
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, ",") + "]"
}

// encodeOrdered preserves element order for order-significant slices.
func encodeOrdered(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts[i] = encodeValue(rv.Index(i))
	}
	return "ordered[" + strings.Join(parts, ",") + "]"
}

func encodeMap(rv reflect.Value) string {
	keys := rv.MapKeys()
	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = encodeValue(k) + "=" + encodeValue(rv.MapIndex(k))
	}
	sort.Strings(encoded)
	return "{" + strings.Join(encoded, ",") + "}"
}

// encodeStruct sorts exported fields by name so that field declaration
// order never leaks into the key.
func encodeStruct(rv reflect.Value) string {
	rt := rv.Type()
	pairs := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		pairs = append(pairs, field.Name+"="+encodeValue(rv.Field(i)))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func jsonFallback(rv reflect.Value) string {
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "unencodable:" + rv.Type().String()
	}
	return "json:" + string(data)
}
