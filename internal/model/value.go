package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Value is a sealed interface over the values an entity field can hold.
// Only Null, String, Int, Float, Bool and Ref implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent (SQL NULL) value.
type Null struct{}

func (Null) value() {}

// String represents a text value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating point value.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Ref is a foreign-key value. It either holds a live Target entity, which
// may still be transient, or just the referenced identity as loaded from the
// store. A held target wins: its identity is read at write time, so a
// reference created before its target was persisted resolves once the target
// has been created.
type Ref struct {
	Target *Entity
	ID     Value
}

func (Ref) value() {}

// Identity returns the referenced identity, or nil when the reference points
// at a transient entity.
func (r Ref) Identity() Value {
	if r.Target != nil {
		return r.Target.ID
	}
	return r.ID
}

// Resolved reports whether the reference points at a persisted row.
func (r Ref) Resolved() bool {
	return !IsNull(r.Identity())
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal compares two values. Refs are equal when they resolve to the same
// identity, or while transient, when they hold the same target.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	ra, aRef := a.(Ref)
	rb, bRef := b.(Ref)
	if aRef || bRef {
		if !aRef || !bRef {
			return false
		}
		if ra.Resolved() || rb.Resolved() {
			return Equal(ra.Identity(), rb.Identity())
		}
		return ra.Target != nil && ra.Target == rb.Target
	}
	return a == b
}

// FromAny converts a Go value, as produced by YAML/JSON decoding or a
// database driver, into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return String(string(val)), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of int64 range", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of int64 range", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case time.Time:
		return String(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// Driver converts v into an argument accepted by database/sql.
// A Ref must be resolved; an unresolved reference is an error.
func Driver(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Float:
		return float64(val), nil
	case Bool:
		return bool(val), nil
	case Ref:
		id := val.Identity()
		if IsNull(id) {
			if val.Target != nil {
				return nil, fmt.Errorf("reference to unsaved %s", val.Target)
			}
			return nil, nil
		}
		return Driver(id)
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// Interface converts v into a plain Go value for display and JSON output.
// References render as their identity.
func Interface(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Ref:
		return Interface(val.Identity())
	default:
		return nil
	}
}
