package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/bulkstep/internal/bulk"
	"github.com/roach88/bulkstep/internal/model"
)

// ErrInjected is returned by a call selected with FailOn.
var ErrInjected = errors.New("injected store failure")

// Store is an in-memory store implementing bulk.Adapter, bulk.Transactor
// and the cascade finder. Rows keep insertion order. Deletes honour the
// registry's on-delete policies the way a relational store would.
//
// Each batch call is all-or-nothing on its own. Transactions snapshot the
// whole store on Begin and restore it on Rollback; nested Begins behave
// like savepoints.
type Store struct {
	mu       sync.Mutex
	reg      *model.Registry
	rows     map[string][]*model.Entity
	seq      *Sequence
	calls    map[bulk.Mode]int
	failures map[bulk.Mode]int
}

// NewStore creates an empty store for the types of reg.
func NewStore(reg *model.Registry) *Store {
	return &Store{
		reg:      reg,
		rows:     make(map[string][]*model.Entity),
		seq:      NewSequence(),
		calls:    make(map[bulk.Mode]int),
		failures: make(map[bulk.Mode]int),
	}
}

// FailOn makes the call-th batch call of mode (1-based) fail with
// ErrInjected.
func (s *Store) FailOn(mode bulk.Mode, call int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[mode] = call
}

// Calls returns how many batch calls of mode the store has received.
func (s *Store) Calls(mode bulk.Mode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[mode]
}

// Rows returns copies of the stored rows of a type, in insertion order.
func (s *Store) Rows(typeName string) []*model.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Entity, len(s.rows[typeName]))
	for i, row := range s.rows[typeName] {
		out[i] = clone(row)
	}
	return out
}

// Count returns the number of stored rows of a type.
func (s *Store) Count(typeName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[typeName])
}

func (s *Store) hit(mode bulk.Mode) error {
	s.calls[mode]++
	if call, ok := s.failures[mode]; ok && call == s.calls[mode] {
		return ErrInjected
	}
	return nil
}

// CreateMany implements bulk.Adapter.
func (s *Store) CreateMany(_ context.Context, t *model.EntityType, entities []*model.Entity) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(bulk.ModeCreate); err != nil {
		return nil, err
	}

	stored := make([]*model.Entity, len(entities))
	for i, e := range entities {
		row, err := s.resolveRow(t, e.Fields)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", e, err)
		}
		stored[i] = row
	}
	for i, e := range entities {
		id := model.Int(s.seq.Next())
		stored[i].ID = id
		e.ID = id
	}
	s.rows[t.Name] = append(s.rows[t.Name], stored...)
	return entities, nil
}

// UpdateMany implements bulk.Adapter.
func (s *Store) UpdateMany(_ context.Context, t *model.EntityType, entities []*model.Entity, fields []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(bulk.ModeUpdate); err != nil {
		return 0, err
	}

	type change struct {
		row    *model.Entity
		values map[string]model.Value
	}
	var changes []change
	for _, e := range entities {
		row := s.find(t.Name, e.ID)
		if row == nil {
			continue
		}
		subset := make(map[string]model.Value, len(fields))
		for _, f := range fields {
			subset[f] = e.Get(f)
		}
		resolved, err := s.resolveRow(t, subset)
		if err != nil {
			return 0, fmt.Errorf("update %s: %w", e, err)
		}
		changes = append(changes, change{row: row, values: resolved.Fields})
	}
	for _, c := range changes {
		maps.Copy(c.row.Fields, c.values)
	}
	return int64(len(changes)), nil
}

// DeleteMany implements bulk.Adapter. Cascading foreign keys delete their
// dependents and set_null foreign keys are cleared. A restrict foreign key
// rejects the delete even when the referencing row is deleted too; a
// no_action foreign key rejects it only while the referencing row survives.
func (s *Store) DeleteMany(_ context.Context, t *model.EntityType, entities []*model.Entity) (bulk.DeleteCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(bulk.ModeDelete); err != nil {
		return bulk.DeleteCount{}, err
	}

	doomed := make(map[*model.Entity]string)
	var queue []*model.Entity
	for _, e := range entities {
		if row := s.find(t.Name, e.ID); row != nil && doomed[row] == "" {
			doomed[row] = t.Name
			queue = append(queue, row)
		}
	}

	type nulling struct {
		row   *model.Entity
		field string
	}
	type blocker struct {
		row    *model.Entity
		policy model.OnDelete
	}
	var blocked []blocker
	var nulls []nulling
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range s.reg.Dependents(doomed[current]) {
			for _, row := range s.rows[dep.Type.Name] {
				if !refersTo(row, dep.ForeignKey.Field, current.ID) {
					continue
				}
				switch dep.ForeignKey.OnDelete {
				case model.OnDeleteCascade:
					if doomed[row] == "" {
						doomed[row] = dep.Type.Name
						queue = append(queue, row)
					}
				case model.OnDeleteSetNull:
					nulls = append(nulls, nulling{row: row, field: dep.ForeignKey.Field})
				default:
					blocked = append(blocked, blocker{row: row, policy: dep.ForeignKey.OnDelete})
				}
			}
		}
	}
	for _, b := range blocked {
		if b.policy == model.OnDeleteRestrict || doomed[b.row] == "" {
			return bulk.DeleteCount{}, fmt.Errorf("FOREIGN KEY constraint failed: %s still references a deleted row", b.row)
		}
	}

	for _, n := range nulls {
		if doomed[n.row] == "" {
			n.row.Fields[n.field] = model.Null{}
		}
	}
	count := bulk.DeleteCount{ByType: map[string]int64{}}
	for name, rows := range s.rows {
		kept := rows[:0:0]
		for _, row := range rows {
			if doomed[row] != "" {
				count.Total++
				count.ByType[name]++
				continue
			}
			kept = append(kept, row)
		}
		s.rows[name] = kept
	}
	return count, nil
}

// FindReferencing returns the stored rows of dep whose fk column holds one
// of ids.
func (s *Store) FindReferencing(_ context.Context, dep *model.EntityType, fk model.ForeignKey, ids []model.Value) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Entity
	for _, row := range s.rows[dep.Name] {
		for _, id := range ids {
			if refersTo(row, fk.Field, id) {
				out = append(out, clone(row))
				break
			}
		}
	}
	return out, nil
}

// Begin implements bulk.Transactor.
func (s *Store) Begin(ctx context.Context) (context.Context, bulk.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ctx, &memoryTx{store: s, rows: s.snapshot(), seq: s.seq.Current()}, nil
}

type memoryTx struct {
	store *Store
	rows  map[string][]*model.Entity
	seq   int64
	done  bool
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errors.New("transaction already closed")
	}
	tx.done = true
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.rows = tx.rows
	tx.store.seq.Restore(tx.seq)
	return nil
}

func (s *Store) snapshot() map[string][]*model.Entity {
	out := make(map[string][]*model.Entity, len(s.rows))
	for name, rows := range s.rows {
		copied := make([]*model.Entity, len(rows))
		for i, row := range rows {
			copied[i] = clone(row)
		}
		out[name] = copied
	}
	return out
}

func (s *Store) find(typeName string, id model.Value) *model.Entity {
	for _, row := range s.rows[typeName] {
		if model.Equal(row.ID, id) {
			return row
		}
	}
	return nil
}

// resolveRow copies fields, replacing references by the identity they
// resolve to and checking that the referenced row exists.
func (s *Store) resolveRow(t *model.EntityType, fields map[string]model.Value) (*model.Entity, error) {
	row := &model.Entity{Type: t, Fields: make(map[string]model.Value, len(fields))}
	for name, v := range fields {
		ref, ok := v.(model.Ref)
		if !ok {
			row.Fields[name] = v
			continue
		}
		id := ref.Identity()
		if model.IsNull(id) {
			if ref.Target != nil {
				return nil, fmt.Errorf("reference to unsaved %s", ref.Target)
			}
			row.Fields[name] = model.Null{}
			continue
		}
		if fk, ok := t.ForeignKey(name); ok && s.find(fk.Target, id) == nil {
			return nil, fmt.Errorf("FOREIGN KEY constraint failed: %s(%v) does not exist", fk.Target, model.Interface(id))
		}
		row.Fields[name] = model.Ref{ID: id}
	}
	return row, nil
}

func refersTo(row *model.Entity, field string, id model.Value) bool {
	ref, ok := row.Get(field).(model.Ref)
	return ok && ref.Resolved() && model.Equal(ref.Identity(), id)
}

func clone(e *model.Entity) *model.Entity {
	return &model.Entity{Type: e.Type, ID: e.ID, Fields: maps.Clone(e.Fields)}
}
