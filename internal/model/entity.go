package model

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Entity is a value of an EntityType: field values plus an optional
// identity. ID is nil (or Null) while the entity is transient.
//
// Bulks are plain []*Entity. Creating a bulk assigns identities on the same
// pointers, which is how Refs held by dependent entities resolve.
type Entity struct {
	Type   *EntityType
	ID     Value
	Fields map[string]Value
}

// NewEntity creates a transient entity. The field map is copied.
func NewEntity(t *EntityType, fields map[string]Value) *Entity {
	copied := make(map[string]Value, len(fields))
	maps.Copy(copied, fields)
	return &Entity{Type: t, Fields: copied}
}

// WithID sets the identity and returns e for chaining.
func (e *Entity) WithID(id Value) *Entity {
	e.ID = id
	return e
}

// Persisted reports whether e carries an identity.
func (e *Entity) Persisted() bool {
	return !IsNull(e.ID)
}

// TypeName returns the name of e's type, or "" if it has none.
func (e *Entity) TypeName() string {
	if e == nil || e.Type == nil {
		return ""
	}
	return e.Type.Name
}

// Get returns the value of a field, or Null if unset.
func (e *Entity) Get(name string) Value {
	if v, ok := e.Fields[name]; ok && v != nil {
		return v
	}
	return Null{}
}

// Set assigns a field value.
func (e *Entity) Set(name string, v Value) {
	if e.Fields == nil {
		e.Fields = make(map[string]Value)
	}
	e.Fields[name] = v
}

// Ref returns a reference to e, usable as a foreign-key value before e is
// persisted.
func (e *Entity) Ref() Ref {
	return Ref{Target: e}
}

// String renders "Type(identity)", or "Type(nil)" while transient.
func (e *Entity) String() string {
	if e == nil {
		return "<nil>"
	}
	if !e.Persisted() {
		return e.TypeName() + "(nil)"
	}
	return fmt.Sprintf("%s(%v)", e.TypeName(), Interface(e.ID))
}

type entityJSON struct {
	Type   string         `json:"type"`
	ID     any            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// MarshalJSON renders the entity with references collapsed to identities.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := entityJSON{
		Type:   e.TypeName(),
		ID:     Interface(e.ID),
		Fields: make(map[string]any, len(e.Fields)),
	}
	for k, v := range e.Fields {
		out.Fields[k] = Interface(v)
	}
	return json.Marshal(out)
}

// CheckHomogeneous verifies every entity is non-nil and of type t.
func CheckHomogeneous(t *EntityType, entities []*Entity) error {
	for i, e := range entities {
		if e == nil {
			return &Error{
				Code:       ErrCodeConfiguration,
				Message:    fmt.Sprintf("nil entity at index %d", i),
				EntityType: t.Name,
			}
		}
		if e.Type != t && (e.Type == nil || e.Type.Name != t.Name) {
			return NewTypeMismatchError(t.Name, e.TypeName())
		}
	}
	return nil
}
