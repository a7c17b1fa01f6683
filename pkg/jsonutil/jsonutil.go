// Package jsonutil makes indicator payloads safe for encoding/json.
//
// Several ratios use ±Inf as an "infinitely good / never recovered"
// sentinel, and encoding/json refuses to encode non-finite floats. Sanitize
// rewrites those values to null while leaving everything else untouched.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Sanitize returns a value that json.Marshal is guaranteed to accept,
// with NaN and ±Inf floats replaced by null. Values that already encode
// cleanly are passed through as pre-encoded JSON.
func Sanitize(v any) any {
	if raw, err := json.Marshal(v); err == nil {
		return json.RawMessage(raw)
	}
	return sanitizeValue(reflect.ValueOf(v))
}

func sanitizeValue(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}

	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitizeValue(rv.Elem())

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = sanitizeValue(iter.Value())
		}
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = sanitizeValue(rv.Index(i))
		}
		return out

	case reflect.Struct:
		return sanitizeStruct(rv)

	default:
		return rv.Interface()
	}
}

func sanitizeStruct(rv reflect.Value) any {
	// Marshaler-backed types (time.Time, dates) never carry floats; trust
	// their own encoding.
	if rv.CanInterface() {
		if _, ok := rv.Interface().(json.Marshaler); ok {
			if raw, err := json.Marshal(rv.Interface()); err == nil {
				return json.RawMessage(raw)
			}
		}
	}

	out := make(map[string]any, rv.NumField())
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		omitempty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		fv := rv.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if embedded, ok := sanitizeStruct(fv).(map[string]any); ok {
				for k, v := range embedded {
					out[k] = v
				}
				continue
			}
		}
		if omitempty && fv.IsZero() {
			continue
		}
		out[name] = sanitizeValue(fv)
	}
	return out
}
