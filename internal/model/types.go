package model

import (
	"fmt"
	"strings"
	"unicode"
)

// KeyField is the column name holding an entity's identity.
const KeyField = "id"

// FieldKind is the storage kind of a field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindBool   FieldKind = "bool"
	KindRef    FieldKind = "ref" // foreign key into another entity type
)

// ValidFieldKinds defines allowed field kinds.
var ValidFieldKinds = map[FieldKind]bool{
	KindString: true,
	KindInt:    true,
	KindFloat:  true,
	KindBool:   true,
	KindRef:    true,
}

// KeyKind selects how identities are assigned on create.
type KeyKind string

const (
	// KeySerial identities are integers assigned by the store.
	KeySerial KeyKind = "serial"
	// KeyUUID identities are UUIDv7 strings assigned by the adapter.
	KeyUUID KeyKind = "uuid"
)

// OnDelete is the behaviour of a foreign key when its referent is deleted.
type OnDelete string

const (
	OnDeleteCascade  OnDelete = "cascade"
	OnDeleteSetNull  OnDelete = "set_null"
	OnDeleteRestrict OnDelete = "restrict"
	OnDeleteNoAction OnDelete = "no_action"
)

// ParseOnDelete parses an on-delete policy. An empty string means cascade.
func ParseOnDelete(s string) (OnDelete, error) {
	switch OnDelete(strings.ToLower(strings.TrimSpace(s))) {
	case "", OnDeleteCascade:
		return OnDeleteCascade, nil
	case OnDeleteSetNull:
		return OnDeleteSetNull, nil
	case OnDeleteRestrict, "protect":
		return OnDeleteRestrict, nil
	case OnDeleteNoAction, "do_nothing":
		return OnDeleteNoAction, nil
	default:
		return "", NewConfigurationError("unknown on_delete policy %q", s)
	}
}

// Field describes one column of an entity type.
type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Nullable bool      `json:"nullable,omitempty"`
}

// ForeignKey describes a reference from a field to another entity type.
type ForeignKey struct {
	Field    string   `json:"field"`
	Target   string   `json:"target"`
	OnDelete OnDelete `json:"on_delete"`
}

// Cascades reports whether deleting the referent deletes the referencing row.
func (fk ForeignKey) Cascades() bool {
	return fk.OnDelete == OnDeleteCascade
}

// EntityType is a schema descriptor: a name, an ordered field list and the
// foreign keys among those fields. Every foreign key field is also listed in
// Fields with KindRef. Entity types are immutable once registered.
type EntityType struct {
	Name        string       `json:"name"`
	Table       string       `json:"table,omitempty"`
	Key         KeyKind      `json:"key,omitempty"`
	Fields      []Field      `json:"fields"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// String returns the type name.
func (t *EntityType) String() string {
	return t.Name
}

// TableName returns the table backing this type. Defaults to the snake_case
// type name.
func (t *EntityType) TableName() string {
	if t.Table != "" {
		return t.Table
	}
	return snakeCase(t.Name)
}

// KeyKind returns the identity kind, defaulting to KeySerial.
func (t *EntityType) KeyKind() KeyKind {
	if t.Key == "" {
		return KeySerial
	}
	return t.Key
}

// FieldNames returns the field names in declaration order.
func (t *EntityType) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (t *EntityType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the type declares the named field.
func (t *EntityType) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// ForeignKey looks up the foreign key declared on a field.
func (t *EntityType) ForeignKey(field string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Field == field {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// References returns the foreign keys of t that point at target.
func (t *EntityType) References(target string) []ForeignKey {
	var fks []ForeignKey
	for _, fk := range t.ForeignKeys {
		if fk.Target == target {
			fks = append(fks, fk)
		}
	}
	return fks
}

// CheckFields returns a ConfigurationError naming the first field in names
// that t does not declare.
func (t *EntityType) CheckFields(names []string) error {
	for _, name := range names {
		if !t.HasField(name) {
			return &Error{
				Code:       ErrCodeConfiguration,
				Message:    fmt.Sprintf("unknown field %q", name),
				EntityType: t.Name,
			}
		}
	}
	return nil
}

// snakeCase converts a CamelCase name to snake_case ("ModelA" -> "model_a").
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
