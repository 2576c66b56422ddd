package store

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/roach88/bulkstep/internal/model"
)

// Load returns the stored rows of t whose identity is in ids, ordered by
// identity. Missing identities are skipped.
func (s *Store) Load(ctx context.Context, t *model.EntityType, ids []model.Value) ([]*model.Entity, error) {
	if err := s.check(t); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Entity{}, nil
	}
	args, err := driverValues(ids)
	if err != nil {
		return nil, err
	}

	sb := selectRows(t)
	sb.Where(sb.In(quote(model.KeyField), args...))
	return s.queryEntities(ctx, t, sb)
}

// All returns every stored row of t ordered by identity.
func (s *Store) All(ctx context.Context, t *model.EntityType) ([]*model.Entity, error) {
	if err := s.check(t); err != nil {
		return nil, err
	}
	return s.queryEntities(ctx, t, selectRows(t))
}

// Count returns the number of stored rows of t.
func (s *Store) Count(ctx context.Context, t *model.EntityType) (int64, error) {
	if err := s.check(t); err != nil {
		return 0, err
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(quote(t.TableName()))

	query, args := sb.Build()
	var n int64
	if err := sqlx.GetContext(ctx, s.conn(ctx), &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return n, nil
}

// FindReferencing implements cascade.Finder.
func (s *Store) FindReferencing(ctx context.Context, dependent *model.EntityType, fk model.ForeignKey, ids []model.Value) ([]*model.Entity, error) {
	if err := s.check(dependent); err != nil {
		return nil, err
	}
	if !dependent.HasField(fk.Field) {
		return nil, model.NewConfigurationError("%s has no field %q", dependent.Name, fk.Field)
	}
	if len(ids) == 0 {
		return []*model.Entity{}, nil
	}
	args, err := driverValues(ids)
	if err != nil {
		return nil, err
	}

	sb := selectRows(dependent)
	sb.Where(sb.In(quote(fk.Field), args...))
	return s.queryEntities(ctx, dependent, sb)
}

// selectRows selects the key and every field of t, ordered by key.
func selectRows(t *model.EntityType) *sqlbuilder.SelectBuilder {
	cols := make([]string, 0, len(t.Fields)+1)
	cols = append(cols, quote(model.KeyField))
	for _, f := range t.Fields {
		cols = append(cols, quote(f.Name))
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(cols...)
	sb.From(quote(t.TableName()))
	sb.OrderBy(quote(model.KeyField)).Asc()
	return sb
}

func (s *Store) queryEntities(ctx context.Context, t *model.EntityType, sb *sqlbuilder.SelectBuilder) ([]*model.Entity, error) {
	query, args := sb.Build()
	rows, err := s.conn(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []*model.Entity{}
	for rows.Next() {
		raw := make(map[string]any, len(t.Fields)+1)
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		e, err := entityFromRow(t, raw)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return out, nil
}

// entityFromRow converts a scanned row into a persisted entity. Reference
// columns become unresolved Refs holding the stored identity.
func entityFromRow(t *model.EntityType, raw map[string]any) (*model.Entity, error) {
	id, err := model.FromAny(raw[model.KeyField])
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	e := &model.Entity{Type: t, ID: id, Fields: make(map[string]model.Value, len(t.Fields))}
	for _, f := range t.Fields {
		v, err := columnValue(f, raw[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		e.Fields[f.Name] = v
	}
	return e, nil
}

func columnValue(f model.Field, raw any) (model.Value, error) {
	v, err := model.FromAny(raw)
	if err != nil {
		return nil, err
	}
	if model.IsNull(v) {
		return model.Null{}, nil
	}
	switch f.Kind {
	case model.KindRef:
		return model.Ref{ID: v}, nil
	case model.KindBool:
		if n, ok := v.(model.Int); ok {
			return model.Bool(n != 0), nil
		}
	case model.KindFloat:
		if n, ok := v.(model.Int); ok {
			return model.Float(n), nil
		}
	}
	return v, nil
}
