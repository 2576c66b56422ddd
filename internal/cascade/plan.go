package cascade

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/bulkstep/internal/model"
)

// Plan is the computed outcome of a hypothetical delete: every entity that
// would be removed, grouped by type, plus the entities that would block the
// delete through a restrict foreign key. A Plan is never modified after it
// is returned.
type Plan struct {
	order      []string
	entities   map[string][]*model.Entity
	keys       map[entryKey]bool
	restricted map[string][]*model.Entity
	restrOrder []string
	// policies holds, per restricting entity, the strictest policy it
	// blocks through: restrict outranks no_action.
	policies map[entryKey]model.OnDelete
}

// entryKey identifies an entity within a plan. Persisted entities are keyed
// by identity hash; transient seeds by pointer.
type entryKey struct {
	typ  string
	hash model.Hash
	ptr  *model.Entity
}

func newPlan() *Plan {
	return &Plan{
		entities:   make(map[string][]*model.Entity),
		keys:       make(map[entryKey]bool),
		restricted: make(map[string][]*model.Entity),
		policies:   make(map[entryKey]model.OnDelete),
	}
}

func keyOf(e *model.Entity) entryKey {
	if !e.Persisted() {
		return entryKey{typ: e.TypeName(), ptr: e}
	}
	return entryKey{typ: e.TypeName(), hash: model.MustHashEntity(e, nil)}
}

// add records e and reports whether it was new.
func (p *Plan) add(e *model.Entity) bool {
	k := keyOf(e)
	if p.keys[k] {
		return false
	}
	p.keys[k] = true
	name := e.TypeName()
	if _, seen := p.entities[name]; !seen {
		p.order = append(p.order, name)
	}
	p.entities[name] = append(p.entities[name], e)
	return true
}

func (p *Plan) addRestricted(e *model.Entity, policy model.OnDelete) {
	name := e.TypeName()
	k := keyOf(e)
	if prev, seen := p.policies[k]; seen {
		if prev != model.OnDeleteRestrict {
			p.policies[k] = policy
		}
		return
	}
	p.policies[k] = policy
	if _, seen := p.restricted[name]; !seen {
		p.restrOrder = append(p.restrOrder, name)
	}
	p.restricted[name] = append(p.restricted[name], e)
}

// pruneRestricted drops no_action blockers the plan deletes anyway. SQLite
// checks no_action at the end of the statement, after cascades ran, but
// checks restrict immediately, so a restrict blocker blocks even when the
// same delete would remove it.
func (p *Plan) pruneRestricted() {
	order := p.restrOrder[:0:0]
	for _, name := range p.restrOrder {
		kept := slices.DeleteFunc(p.restricted[name], func(e *model.Entity) bool {
			k := keyOf(e)
			if p.keys[k] && p.policies[k] == model.OnDeleteNoAction {
				delete(p.policies, k)
				return true
			}
			return false
		})
		if len(kept) == 0 {
			delete(p.restricted, name)
			continue
		}
		p.restricted[name] = kept
		order = append(order, name)
	}
	p.restrOrder = order
}

// Types returns the affected type names in discovery order: seed types
// first, then dependents in the order the walk reached them.
func (p *Plan) Types() []string {
	return slices.Clone(p.order)
}

// Entities returns the affected entities of a type.
func (p *Plan) Entities(typeName string) []*model.Entity {
	return slices.Clone(p.entities[typeName])
}

// Count returns the number of affected entities of a type.
func (p *Plan) Count(typeName string) int {
	return len(p.entities[typeName])
}

// Counts returns the per-type breakdown a real delete would report.
func (p *Plan) Counts() map[string]int64 {
	counts := make(map[string]int64, len(p.entities))
	for name, es := range p.entities {
		counts[name] = int64(len(es))
	}
	return counts
}

// Total returns the number of affected entities across all types.
func (p *Plan) Total() int64 {
	var total int64
	for _, es := range p.entities {
		total += int64(len(es))
	}
	return total
}

// Empty reports whether the plan affects nothing.
func (p *Plan) Empty() bool {
	return len(p.keys) == 0
}

// Contains reports whether e is in the plan.
func (p *Plan) Contains(e *model.Entity) bool {
	return p.keys[keyOf(e)]
}

// RestrictedTypes returns the names of types with restricting entities.
func (p *Plan) RestrictedTypes() []string {
	return slices.Clone(p.restrOrder)
}

// Restricted returns the entities of a type that reference the plan through
// a restrict foreign key, or through a no_action foreign key without being
// deleted themselves. A real delete fails while any exist.
func (p *Plan) Restricted(typeName string) []*model.Entity {
	return slices.Clone(p.restricted[typeName])
}

// Blocked reports whether any restricting entity exists.
func (p *Plan) Blocked() bool {
	return len(p.restrOrder) > 0
}

// Merge unions plans by type. Type order follows first appearance; an
// entity present in several plans appears once.
func Merge(plans ...*Plan) *Plan {
	out := newPlan()
	for _, p := range plans {
		if p == nil {
			continue
		}
		for _, name := range p.order {
			for _, e := range p.entities[name] {
				out.add(e)
			}
		}
	}
	for _, p := range plans {
		if p == nil {
			continue
		}
		for _, name := range p.restrOrder {
			for _, e := range p.restricted[name] {
				out.addRestricted(e, p.policies[keyOf(e)])
			}
		}
	}
	out.pruneRestricted()
	return out
}

// TypeSummary is the JSON rendering of one type in a plan.
type TypeSummary struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	IDs   []any  `json:"ids"`
}

// Summary is the JSON rendering of a plan.
type Summary struct {
	Types      []TypeSummary `json:"types"`
	Total      int64         `json:"total"`
	Restricted []TypeSummary `json:"restricted,omitempty"`
}

// Summary renders the plan with entities reduced to their identities.
func (p *Plan) Summary() Summary {
	s := Summary{Types: []TypeSummary{}, Total: p.Total()}
	for _, name := range p.order {
		s.Types = append(s.Types, summarize(name, p.entities[name]))
	}
	for _, name := range p.restrOrder {
		s.Restricted = append(s.Restricted, summarize(name, p.restricted[name]))
	}
	return s
}

func summarize(name string, entities []*model.Entity) TypeSummary {
	ids := make([]any, len(entities))
	for i, e := range entities {
		ids[i] = model.Interface(e.ID)
	}
	return TypeSummary{Type: name, Count: len(entities), IDs: ids}
}

// Render writes a human-readable plan, one line per type.
func (p *Plan) Render(w io.Writer) error {
	var b strings.Builder
	for _, ts := range p.Summary().Types {
		fmt.Fprintf(&b, "%s: %d (%s)\n", ts.Type, ts.Count, joinIDs(ts.IDs))
	}
	fmt.Fprintf(&b, "total: %d\n", p.Total())
	for _, ts := range p.Summary().Restricted {
		fmt.Fprintf(&b, "restricted %s: %d (%s)\n", ts.Type, ts.Count, joinIDs(ts.IDs))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinIDs(ids []any) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		if id == nil {
			parts[i] = "nil"
			continue
		}
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
