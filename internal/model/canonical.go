package model

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxRefDepth bounds how many transient references are followed when a
// reference is encoded by its target's content.
const maxRefDepth = 16

// MarshalCanonical produces the canonical encoding of v used for hashing.
//
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Floats use the shortest round-trip form; NaN and Inf are rejected
//  5. Refs encode the referenced identity, or the content of a transient target
func MarshalCanonical(v Value) ([]byte, error) {
	return marshalCanonical(v, 0)
}

// MarshalCanonicalObject produces the canonical encoding of a field map.
func MarshalCanonicalObject(obj map[string]Value) ([]byte, error) {
	return marshalCanonicalObject(obj, 0)
}

func marshalCanonical(v Value, depth int) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val)), nil
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Float:
		return marshalCanonicalFloat(float64(val))
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Ref:
		return marshalCanonicalRef(val, depth)
	default:
		return nil, fmt.Errorf("unsupported type for canonical encoding: %T", v)
	}
}

// marshalCanonicalFloat encodes a finite float. Integral floats encode like
// integers, so Float(1) and Int(1) are indistinguishable once encoded.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v cannot be encoded", f)
	}
	if f == 0 {
		f = 0 // folds -0
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalCanonicalRef encodes a reference. A resolved reference encodes as
// {"$ref": identity}. A transient target encodes as
// {"$new": {"fields": {...}, "type": name}} so that two pending rows pointing
// at equal pending targets encode equally.
func marshalCanonicalRef(r Ref, depth int) ([]byte, error) {
	if r.Resolved() {
		id, err := marshalCanonical(r.Identity(), depth)
		if err != nil {
			return nil, err
		}
		return concat([]byte(`{"$ref":`), id, []byte("}")), nil
	}
	if r.Target == nil {
		return []byte("null"), nil
	}
	if depth >= maxRefDepth {
		return nil, fmt.Errorf("reference chain deeper than %d at %s", maxRefDepth, r.Target)
	}

	fields := r.Target.Fields
	if r.Target.Type != nil {
		fields = make(map[string]Value, len(r.Target.Type.Fields))
		for _, f := range r.Target.Type.Fields {
			fields[f.Name] = r.Target.Get(f.Name)
		}
	}
	body, err := marshalCanonicalObject(fields, depth+1)
	if err != nil {
		return nil, fmt.Errorf("ref %s: %w", r.Target, err)
	}
	return concat(
		[]byte(`{"$new":{"fields":`), body,
		[]byte(`,"type":`), marshalCanonicalString(r.Target.TypeName()),
		[]byte("}}"),
	), nil
}

// marshalCanonicalString produces a canonical JSON string with NFC normalization.
// Only control characters (U+0000-U+001F), backslash, and quote are escaped;
// U+2028 and U+2029 are written literally.
func marshalCanonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	buf.Grow(len(normalized) + 2)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
				continue
			}
			if r == utf8.RuneError {
				buf.WriteString("�")
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.Bytes()
}

// marshalCanonicalObject marshals a field map with RFC 8785 key ordering.
func marshalCanonicalObject(obj map[string]Value, depth int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range sortedKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k], depth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's default string ordering is by UTF-8 bytes, which differs for
// characters outside the BMP.
func sortedKeys(obj map[string]Value) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
