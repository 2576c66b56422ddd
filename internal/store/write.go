package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/bulkstep/internal/bulk"
	"github.com/roach88/bulkstep/internal/model"
)

// CreateMany implements bulk.Adapter. The chunk is inserted in one
// transaction; identities are written back to the entities only after every
// row was inserted.
func (s *Store) CreateMany(ctx context.Context, t *model.EntityType, entities []*model.Entity) ([]*model.Entity, error) {
	if err := s.check(t); err != nil {
		return nil, err
	}

	ids := make([]model.Value, len(entities))
	err := s.within(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)
		for i, e := range entities {
			cols, vals, err := columnValues(t, e, t.FieldNames())
			if err != nil {
				return fmt.Errorf("insert %s: %w", e, err)
			}

			var id model.Value
			if t.KeyKind() == model.KeyUUID {
				u, err := uuid.NewV7()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				id = model.String(u.String())
				cols = append([]string{quote(model.KeyField)}, cols...)
				vals = append([]any{u.String()}, vals...)
			}

			var query string
			var args []any
			if len(cols) == 0 {
				query = "INSERT INTO " + quote(t.TableName()) + " DEFAULT VALUES"
			} else {
				ib := sqlbuilder.SQLite.NewInsertBuilder()
				ib.InsertInto(quote(t.TableName()))
				ib.Cols(cols...)
				ib.Values(vals...)
				query, args = ib.Build()
			}

			res, err := conn.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("insert %s: %w", e, err)
			}
			if id == nil {
				n, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("insert %s: last insert id: %w", e, err)
				}
				id = model.Int(n)
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, e := range entities {
		e.ID = ids[i]
	}
	return entities, nil
}

// UpdateMany implements bulk.Adapter. Only the named fields are written.
// Entities whose row no longer exists are skipped and not counted.
func (s *Store) UpdateMany(ctx context.Context, t *model.EntityType, entities []*model.Entity, fields []string) (int64, error) {
	if err := s.check(t); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, model.NewConfigurationError("update of %s requires at least one field", t.Name)
	}
	if err := t.CheckFields(fields); err != nil {
		return 0, err
	}

	var updated int64
	err := s.within(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)
		for _, e := range entities {
			cols, vals, err := columnValues(t, e, fields)
			if err != nil {
				return fmt.Errorf("update %s: %w", e, err)
			}
			id, err := model.Driver(e.ID)
			if err != nil {
				return fmt.Errorf("update %s: %w", e, err)
			}

			ub := sqlbuilder.SQLite.NewUpdateBuilder()
			ub.Update(quote(t.TableName()))
			assignments := make([]string, len(cols))
			for i, col := range cols {
				assignments[i] = ub.Assign(col, vals[i])
			}
			ub.Set(assignments...)
			ub.Where(ub.Equal(quote(model.KeyField), id))

			query, args := ub.Build()
			res, err := conn.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("update %s: %w", e, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("update %s: rows affected: %w", e, err)
			}
			updated += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// DeleteMany implements bulk.Adapter. The returned count includes every row
// SQLite removes through ON DELETE CASCADE. Entities whose row no longer
// exists are ignored.
func (s *Store) DeleteMany(ctx context.Context, t *model.EntityType, entities []*model.Entity) (bulk.DeleteCount, error) {
	if err := s.check(t); err != nil {
		return bulk.DeleteCount{}, err
	}

	var count bulk.DeleteCount
	err := s.within(ctx, func(ctx context.Context) error {
		ids := make([]model.Value, len(entities))
		for i, e := range entities {
			ids[i] = e.ID
		}
		existing, err := s.Load(ctx, t, ids)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			count = bulk.DeleteCount{ByType: map[string]int64{}}
			return nil
		}

		plan, err := s.simulator.Simulate(ctx, t, existing)
		if err != nil {
			return err
		}
		if plan.Blocked() {
			blocker := plan.RestrictedTypes()[0]
			return fmt.Errorf("FOREIGN KEY constraint failed: %d %s row(s) restrict the delete of %s",
				len(plan.Restricted(blocker)), blocker, t.Name)
		}

		args, err := driverValues(ids)
		if err != nil {
			return err
		}
		db := sqlbuilder.SQLite.NewDeleteBuilder()
		db.DeleteFrom(quote(t.TableName()))
		db.Where(db.In(quote(model.KeyField), args...))

		query, qargs := db.Build()
		if _, err := s.conn(ctx).ExecContext(ctx, query, qargs...); err != nil {
			return fmt.Errorf("delete %s: %w", t.Name, err)
		}

		count = bulk.DeleteCount{Total: plan.Total(), ByType: plan.Counts()}
		return nil
	})
	if err != nil {
		return bulk.DeleteCount{}, err
	}

	s.logger.Debug("rows deleted",
		"entity_type", t.Name,
		"rows", count.Total,
		"types", count.Types(),
	)
	return count, nil
}

// check rejects types the store has no table for.
func (s *Store) check(t *model.EntityType) error {
	if t == nil {
		return model.NewConfigurationError("entity type is required")
	}
	registered, err := s.reg.Lookup(t.Name)
	if err != nil {
		return err
	}
	if registered != t {
		return model.NewConfigurationError("entity type %s is not the registered descriptor", t.Name)
	}
	return nil
}

// columnValues returns the quoted columns and driver values of the named
// fields of e.
func columnValues(t *model.EntityType, e *model.Entity, fields []string) ([]string, []any, error) {
	cols := make([]string, len(fields))
	vals := make([]any, len(fields))
	for i, name := range fields {
		if !t.HasField(name) {
			return nil, nil, model.NewConfigurationError("unknown field %q", name)
		}
		v, err := model.Driver(e.Get(name))
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", name, err)
		}
		cols[i] = quote(name)
		vals[i] = v
	}
	return cols, vals, nil
}

func driverValues(values []model.Value) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		d, err := model.Driver(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
