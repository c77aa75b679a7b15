// Package document converts between user-facing structs and the canonical
// protocol.Document tree. Generated clients marshal their typed inputs
// through this package before handing them to a codec, and decode codec
// output back into typed results. Field binding follows the `vogels` struct
// tag, falling back to the `json` tag and then the field name.
package document

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/acksell/vogels/sdk/protocol"
)

// Ptr returns a pointer to v. Generated code uses it for optional members.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

var timeType = reflect.TypeOf(time.Time{})

// Marshal converts a value into its Document form. Nil pointers, nil maps
// and nil slices are omitted from structures, matching what the protocols
// expect for absent optional members.
func Marshal(v any) (protocol.Document, error) {
	return marshalValue(reflect.ValueOf(v))
}

func marshalValue(rv reflect.Value) (protocol.Document, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return marshalValue(rv.Elem())
	}

	if rv.Type() == timeType {
		return rv.Interface().(time.Time), nil
	}

	switch rv.Kind() {
	case reflect.Struct:
		return marshalStruct(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("document: map keys must be strings, got %s", rv.Type().Key())
		}
		out := make(map[string]protocol.Document, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := marshalValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = v
		}
		return out, nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
		out := make([]protocol.Document, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := marshalValue(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case reflect.Array:
		out := make([]protocol.Document, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := marshalValue(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, fmt.Errorf("document: cannot marshal %s", rv.Type())
}

func marshalStruct(rv reflect.Value) (protocol.Document, error) {
	t := rv.Type()
	out := make(map[string]protocol.Document)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		fv := rv.Field(i)
		if isNilable(fv.Kind()) && fv.IsNil() {
			continue
		}
		v, err := marshalValue(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Unmarshal decodes a Document into out, which must be a non-nil pointer.
// Unknown document keys are ignored; missing keys leave fields at their
// zero values.
func Unmarshal(doc protocol.Document, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("document: Unmarshal target must be a non-nil pointer, got %T", out)
	}
	return unmarshalValue(doc, rv.Elem())
}

func unmarshalValue(doc protocol.Document, rv reflect.Value) error {
	if doc == nil {
		return nil
	}

	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return unmarshalValue(doc, rv.Elem())
	}

	// Empty-interface targets take the document as-is. Generated clients
	// type free-form document members this way.
	if rv.Kind() == reflect.Interface && rv.NumMethod() == 0 {
		rv.Set(reflect.ValueOf(doc))
		return nil
	}

	if rv.Type() == timeType {
		t, ok := protocol.AsTime(doc)
		if !ok {
			parsed, err := protocol.ParseTimestamp(doc, "", protocol.TimestampISO8601)
			if err != nil {
				return fmt.Errorf("document: %w", err)
			}
			t = parsed
		}
		rv.Set(reflect.ValueOf(t))
		return nil
	}

	switch rv.Kind() {
	case reflect.Struct:
		fields, ok := protocol.Fields(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into struct %s", doc, rv.Type())
		}
		return unmarshalStruct(fields, rv)
	case reflect.Map:
		fields, ok := protocol.Fields(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into map %s", doc, rv.Type())
		}
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("document: map keys must be strings, got %s", rv.Type().Key())
		}
		m := reflect.MakeMapWithSize(rv.Type(), len(fields))
		for k, v := range fields {
			ev := reflect.New(rv.Type().Elem()).Elem()
			if err := unmarshalValue(v, ev); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(k), ev)
		}
		rv.Set(m)
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := protocol.AsBytes(doc)
			if !ok {
				return fmt.Errorf("document: cannot decode %T into []byte", doc)
			}
			rv.SetBytes(b)
			return nil
		}
		items, ok := doc.([]protocol.Document)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into slice %s", doc, rv.Type())
		}
		s := reflect.MakeSlice(rv.Type(), len(items), len(items))
		for i, item := range items {
			if err := unmarshalValue(item, s.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(s)
		return nil
	case reflect.String:
		s, ok := protocol.AsString(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into string", doc)
		}
		rv.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := protocol.AsBool(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into bool", doc)
		}
		rv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := protocol.AsInt64(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into %s", doc, rv.Type())
		}
		if rv.OverflowInt(n) {
			return fmt.Errorf("document: %d overflows %s", n, rv.Type())
		}
		rv.SetInt(n)
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := protocol.AsFloat64(doc)
		if !ok {
			return fmt.Errorf("document: cannot decode %T into %s", doc, rv.Type())
		}
		rv.SetFloat(f)
		return nil
	}
	return fmt.Errorf("document: cannot unmarshal into %s", rv.Type())
}

func unmarshalStruct(fields map[string]protocol.Document, rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		doc, ok := fields[name]
		if !ok || doc == nil {
			continue
		}
		if err := unmarshalValue(doc, rv.Field(i)); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// fieldName picks the document key for a struct field: the vogels tag,
// then the json tag, then the field name itself.
func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("vogels"); ok {
		return tagName(tag)
	}
	if tag, ok := field.Tag.Lookup("json"); ok {
		return tagName(tag)
	}
	return field.Name
}

func tagName(tag string) string {
	if idx := strings.Index(tag, ","); idx != -1 {
		return tag[:idx]
	}
	return tag
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}
