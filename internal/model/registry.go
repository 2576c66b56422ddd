package model

import (
	"fmt"
	"sort"
)

// Registry is the explicit catalog of entity types known to one process.
// It is built once and is read-only afterwards.
type Registry struct {
	types  []*EntityType
	byName map[string]*EntityType
}

// Dependent is a foreign key on Type pointing at some other type.
type Dependent struct {
	Type       *EntityType
	ForeignKey ForeignKey
}

// NewRegistry validates the given types and indexes them by name.
// Registration order is kept and used wherever a stable order is needed.
//
// Validation rules:
//   - Names are non-empty and unique
//   - Field names are unique and never the reserved key field "id"
//   - Field kinds are valid; every ref field has exactly one foreign key
//   - Foreign key targets are registered
//   - set_null foreign keys are on nullable fields
//
// Each type's OnDelete policies are normalized (empty means cascade).
func NewRegistry(types ...*EntityType) (*Registry, error) {
	r := &Registry{
		types:  make([]*EntityType, 0, len(types)),
		byName: make(map[string]*EntityType, len(types)),
	}
	for _, t := range types {
		if t == nil || t.Name == "" {
			return nil, NewConfigurationError("entity type name must not be empty")
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, NewConfigurationError("duplicate entity type %q", t.Name)
		}
		r.types = append(r.types, t)
		r.byName[t.Name] = t
	}

	for _, t := range r.types {
		if err := r.validateType(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(types ...*EntityType) *Registry {
	r, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) validateType(t *EntityType) error {
	typeErr := func(format string, args ...any) error {
		return &Error{
			Code:       ErrCodeConfiguration,
			Message:    fmt.Sprintf(format, args...),
			EntityType: t.Name,
		}
	}

	switch t.KeyKind() {
	case KeySerial, KeyUUID:
	default:
		return typeErr("unknown key kind %q", t.Key)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return typeErr("field name must not be empty")
		}
		if f.Name == KeyField {
			return typeErr("field %q is reserved for the identity", KeyField)
		}
		if seen[f.Name] {
			return typeErr("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !ValidFieldKinds[f.Kind] {
			return typeErr("field %q has invalid kind %q", f.Name, f.Kind)
		}
		if f.Kind == KindRef {
			if _, ok := t.ForeignKey(f.Name); !ok {
				return typeErr("ref field %q has no foreign key", f.Name)
			}
		}
	}

	fkSeen := make(map[string]bool, len(t.ForeignKeys))
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		if fkSeen[fk.Field] {
			return typeErr("field %q has more than one foreign key", fk.Field)
		}
		fkSeen[fk.Field] = true

		f, ok := t.Field(fk.Field)
		if !ok {
			return typeErr("foreign key on undeclared field %q", fk.Field)
		}
		if f.Kind != KindRef {
			return typeErr("foreign key field %q must have kind %q, got %q", fk.Field, KindRef, f.Kind)
		}
		if _, ok := r.byName[fk.Target]; !ok {
			return typeErr("foreign key %q targets unknown type %q", fk.Field, fk.Target)
		}

		policy, err := ParseOnDelete(string(fk.OnDelete))
		if err != nil {
			return typeErr("foreign key %q: unknown on_delete policy %q", fk.Field, fk.OnDelete)
		}
		fk.OnDelete = policy
		if policy == OnDeleteSetNull && !f.Nullable {
			return typeErr("foreign key %q uses set_null on a non-nullable field", fk.Field)
		}
	}
	return nil
}

// Get returns the named type, or nil.
func (r *Registry) Get(name string) *EntityType {
	return r.byName[name]
}

// Lookup returns the named type or a ConfigurationError.
func (r *Registry) Lookup(name string) (*EntityType, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, NewConfigurationError("unknown entity type %q", name)
	}
	return t, nil
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*EntityType {
	out := make([]*EntityType, len(r.types))
	copy(out, r.types)
	return out
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for _, t := range r.types {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.types)
}

// Dependents returns every foreign key in the registry that targets name,
// in registration and declaration order. Self-references are included.
func (r *Registry) Dependents(name string) []Dependent {
	var deps []Dependent
	for _, t := range r.types {
		for _, fk := range t.ForeignKeys {
			if fk.Target == name {
				deps = append(deps, Dependent{Type: t, ForeignKey: fk})
			}
		}
	}
	return deps
}
