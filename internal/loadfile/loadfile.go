// Package loadfile reads YAML import documents into pending bulks.
//
// A document maps entity type names to lists of rows. Type order in the
// document is the input order handed to the orchestrator:
//
//	Author:
//	  - _key: leguin
//	    name: Ursula K. Le Guin
//	Book:
//	  - title: The Dispossessed
//	    author: {$ref: leguin}
//	    publisher: {$id: 3}
//
// Row keys starting with an underscore are directives:
//   - _key names the row so other rows can reference it with {$ref: name}
//   - _id gives the row an identity, making it persisted
//
// A reference field takes {$ref: key} for a row in the same document, in
// any position, or {$id: value} for a row already stored.
package loadfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bulkstep/internal/bulk"
	"github.com/roach88/bulkstep/internal/model"
)

const (
	directiveKey = "_key"
	directiveID  = "_id"
	refKey       = "$ref"
	refID        = "$id"
)

// Document is a parsed import document.
type Document struct {
	// Bulks holds one bulk per type, in document order.
	Bulks []bulk.TypedBulk
	// Keys maps each _key to its row.
	Keys map[string]*model.Entity
}

// Bulk returns the rows of the named type, or nil.
func (d *Document) Bulk(typeName string) []*model.Entity {
	for _, b := range d.Bulks {
		if b.Type.Name == typeName {
			return b.Entities
		}
	}
	return nil
}

// Count returns the number of rows across all types.
func (d *Document) Count() int {
	n := 0
	for _, b := range d.Bulks {
		n += len(b.Entities)
	}
	return n
}

// Load reads and parses the document at path.
func Load(reg *model.Registry, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	doc, err := Parse(reg, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// pendingRef is a {$ref: key} waiting for every row to be read.
type pendingRef struct {
	row   *model.Entity
	field string
	fk    model.ForeignKey
	key   string
	line  int
}

// Parse parses an import document against the types of reg.
func Parse(reg *model.Registry, data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	doc := &Document{Bulks: []bulk.TypedBulk{}, Keys: map[string]*model.Entity{}}
	if root.Kind == 0 || len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, lineError(top, model.NewConfigurationError("document must map entity types to rows"))
	}

	var pending []pendingRef
	seen := map[string]bool{}
	for i := 0; i+1 < len(top.Content); i += 2 {
		nameNode, rowsNode := top.Content[i], top.Content[i+1]
		t, err := reg.Lookup(nameNode.Value)
		if err != nil {
			return nil, lineError(nameNode, err)
		}
		if seen[t.Name] {
			return nil, lineError(nameNode, model.NewConfigurationError("type %s listed twice", t.Name))
		}
		seen[t.Name] = true

		if rowsNode.Kind != yaml.SequenceNode {
			return nil, lineError(rowsNode, model.NewConfigurationError("%s: rows must be a list", t.Name))
		}
		entities := make([]*model.Entity, 0, len(rowsNode.Content))
		for _, rowNode := range rowsNode.Content {
			e, refs, err := parseRow(t, rowNode, doc.Keys)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
			pending = append(pending, refs...)
		}
		doc.Bulks = append(doc.Bulks, bulk.TypedBulk{Type: t, Entities: entities})
	}

	for _, p := range pending {
		target, ok := doc.Keys[p.key]
		if !ok {
			return nil, fmt.Errorf("line %d: %w", p.line,
				model.NewConfigurationError("%s.%s: unknown key %q", p.row.TypeName(), p.field, p.key))
		}
		if target.TypeName() != p.fk.Target {
			return nil, fmt.Errorf("line %d: %s.%s: %w", p.line, p.row.TypeName(), p.field,
				model.NewTypeMismatchError(p.fk.Target, target.TypeName()))
		}
		p.row.Set(p.field, target.Ref())
	}
	return doc, nil
}

func parseRow(t *model.EntityType, node *yaml.Node, keys map[string]*model.Entity) (*model.Entity, []pendingRef, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil, lineError(node, model.NewConfigurationError("%s: each row must be a mapping", t.Name))
	}

	e := model.NewEntity(t, nil)
	var refs []pendingRef
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value

		switch name {
		case directiveKey:
			if _, dup := keys[valNode.Value]; dup {
				return nil, nil, lineError(valNode, model.NewConfigurationError("duplicate key %q", valNode.Value))
			}
			keys[valNode.Value] = e
			continue
		case directiveID:
			id, err := scalar(valNode)
			if err != nil {
				return nil, nil, lineError(valNode, err)
			}
			e.ID = id
			continue
		}
		if strings.HasPrefix(name, "_") {
			return nil, nil, lineError(keyNode, model.NewConfigurationError("unknown directive %q", name))
		}

		f, ok := t.Field(name)
		if !ok {
			return nil, nil, lineError(keyNode, t.CheckFields([]string{name}))
		}

		if f.Kind == model.KindRef {
			fk, _ := t.ForeignKey(name)
			v, key, err := parseRef(valNode)
			if err != nil {
				return nil, nil, lineError(valNode, fmt.Errorf("%s.%s: %w", t.Name, name, err))
			}
			if key != "" {
				refs = append(refs, pendingRef{row: e, field: name, fk: fk, key: key, line: valNode.Line})
				continue
			}
			e.Set(name, v)
			continue
		}

		v, err := scalar(valNode)
		if err != nil {
			return nil, nil, lineError(valNode, err)
		}
		v, err = coerce(f, v)
		if err != nil {
			return nil, nil, lineError(valNode, fmt.Errorf("%s.%s: %w", t.Name, name, err))
		}
		e.Set(name, v)
	}
	return e, refs, nil
}

// parseRef reads {$ref: key}, {$id: value} or null. A non-empty key means
// the reference resolves later.
func parseRef(node *yaml.Node) (model.Value, string, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return model.Null{}, "", nil
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, "", model.NewConfigurationError("reference must be {%s: key} or {%s: id}", refKey, refID)
	}
	switch node.Content[0].Value {
	case refKey:
		return nil, node.Content[1].Value, nil
	case refID:
		id, err := scalar(node.Content[1])
		if err != nil {
			return nil, "", err
		}
		return model.Ref{ID: id}, "", nil
	default:
		return nil, "", model.NewConfigurationError("reference must be {%s: key} or {%s: id}", refKey, refID)
	}
}

func scalar(node *yaml.Node) (model.Value, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, model.NewConfigurationError("expected a scalar value")
	}
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	return model.FromAny(raw)
}

// coerce checks v against the field kind. Integers widen to floats.
func coerce(f model.Field, v model.Value) (model.Value, error) {
	if model.IsNull(v) {
		return model.Null{}, nil
	}
	switch f.Kind {
	case model.KindString:
		if _, ok := v.(model.String); ok {
			return v, nil
		}
	case model.KindInt:
		if _, ok := v.(model.Int); ok {
			return v, nil
		}
	case model.KindFloat:
		switch n := v.(type) {
		case model.Float:
			return n, nil
		case model.Int:
			return model.Float(n), nil
		}
	case model.KindBool:
		if _, ok := v.(model.Bool); ok {
			return v, nil
		}
	}
	return nil, model.NewConfigurationError("value %v does not fit a %s field", model.Interface(v), f.Kind)
}

func lineError(node *yaml.Node, err error) error {
	return fmt.Errorf("line %d: %w", node.Line, err)
}
