package coalesce

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// DeriveKey returns the hex SHA-256 of identifier, a NUL separator and the JSON
// encoding of args. JSON encoding sorts map keys and keeps struct field order, so
// structurally equal arguments always produce the same key.
//
// Arguments holding a struct with fields JSON would drop (unexported or tagged
// "-") are rejected unless the struct marshals itself, since two different
// values would otherwise encode alike.
func DeriveKey(identifier string, args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	if err := checkEncodable(reflect.ValueOf(args), make(map[uintptr]struct{})); err != nil {
		return "", &SerializationError{Identifier: identifier, Err: err}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", &SerializationError{Identifier: identifier, Err: err}
	}

	h := sha256.New()
	h.Write([]byte(identifier))
	h.Write([]byte{0})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func marshalsItself(t reflect.Type) bool {
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return true
	}
	if t.Kind() != reflect.Pointer {
		pt := reflect.PointerTo(t)
		return pt.Implements(jsonMarshalerType) || pt.Implements(textMarshalerType)
	}
	return false
}

// checkEncodable walks v and fails on any struct whose JSON encoding would
// lose fields. seen guards against pointer cycles; json.Marshal reports those.
func checkEncodable(v reflect.Value, seen map[uintptr]struct{}) error {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() != reflect.Interface && marshalsItself(v.Type()) {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if _, ok := seen[v.Pointer()]; ok {
			return nil
		}
		seen[v.Pointer()] = struct{}{}
		return checkEncodable(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkEncodable(v.Elem(), seen)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if f.Tag.Get("json") == "-" {
				return fmt.Errorf("%s: field %s is excluded from JSON", t, f.Name)
			}
			if !f.IsExported() && !embedsStruct(f) {
				return fmt.Errorf("%s: field %s is unexported", t, f.Name)
			}
			if err := checkEncodable(v.Field(i), seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := range v.Len() {
			if err := checkEncodable(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkEncodable(iter.Value(), seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// embedsStruct reports whether f is an embedded struct (or pointer to one),
// whose exported fields JSON promotes even when the type itself is unexported.
func embedsStruct(f reflect.StructField) bool {
	if !f.Anonymous {
		return false
	}
	t := f.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}
