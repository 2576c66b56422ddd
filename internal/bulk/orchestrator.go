package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/bulkstep/internal/graph"
	"github.com/roach88/bulkstep/internal/model"
)

// TypedBulk is a bulk of entities of one type. A slice of TypedBulk stands
// in for a type-keyed mapping whose order is significant: it breaks ties in
// the dependency order and is the order results come back in.
type TypedBulk struct {
	Type     *model.EntityType
	Entities []*model.Entity
}

// CreateAll creates pending entities of several types that may reference
// each other through model.Ref values.
//
// Types are created in dependency order so that every referent already has
// an identity when a chunk referencing it is written. The result has one
// TypedBulk per input, in input order, holding the now persisted entities.
// There is no enclosing transaction; see CreateAllAtomic.
func (x *Executor) CreateAll(ctx context.Context, bulks []TypedBulk, step int) ([]TypedBulk, error) {
	order, err := x.planCreateAll(bulks, step)
	if err != nil {
		return nil, err
	}
	return x.createAll(ctx, bulks, order, step)
}

// CreateAllAtomic is CreateAll inside one transaction. On failure nothing
// is created and every identity assigned by the call is cleared.
func (x *Executor) CreateAllAtomic(ctx context.Context, bulks []TypedBulk, step int) ([]TypedBulk, error) {
	order, err := x.planCreateAll(bulks, step)
	if err != nil {
		return nil, err
	}

	var out []TypedBulk
	err = x.atomically(ctx, typeList(bulks), ModeCreate, func(txCtx context.Context) error {
		var runErr error
		out, runErr = x.createAll(txCtx, bulks, order, step)
		return runErr
	})
	if err != nil {
		for _, b := range bulks {
			clearIdentities(b.Entities)
		}
		return nil, err
	}
	return out, nil
}

// planCreateAll validates the whole call before anything is written and
// returns the indexes of bulks in creation order.
func (x *Executor) planCreateAll(bulks []TypedBulk, step int) ([]int, error) {
	types := make([]*model.EntityType, len(bulks))
	index := make(map[string]int, len(bulks))
	pending := make(map[*model.Entity]bool)
	for i, b := range bulks {
		if b.Type == nil {
			return nil, model.NewConfigurationError("bulk %d has no entity type", i)
		}
		if err := x.validate(b.Type, b.Entities, ModeCreate, step); err != nil {
			return nil, err
		}
		types[i] = b.Type
		index[b.Type.Name] = i
		for _, e := range b.Entities {
			pending[e] = true
		}
	}

	if err := checkPendingRefs(bulks, pending); err != nil {
		return nil, err
	}

	sorted, err := graph.TopologicalOrder(types)
	if err != nil {
		return nil, err
	}
	order := make([]int, len(sorted))
	for i, t := range sorted {
		order[i] = index[t.Name]
	}
	return order, nil
}

// checkPendingRefs rejects references to transient entities that this call
// will not create. Such a reference could never resolve.
func checkPendingRefs(bulks []TypedBulk, pending map[*model.Entity]bool) error {
	for _, b := range bulks {
		for _, e := range b.Entities {
			for _, fk := range b.Type.ForeignKeys {
				ref, ok := e.Get(fk.Field).(model.Ref)
				if !ok || ref.Resolved() || ref.Target == nil {
					continue
				}
				if !pending[ref.Target] {
					return &model.Error{
						Code:       model.ErrCodeConfiguration,
						Message:    fmt.Sprintf("%s.%s references unsaved %s that is not part of this call", e, fk.Field, ref.Target),
						EntityType: b.Type.Name,
						Mode:       ModeCreate.String(),
					}
				}
				if ref.Target.TypeName() != fk.Target {
					return model.NewTypeMismatchError(fk.Target, ref.Target.TypeName())
				}
			}
		}
	}
	return nil
}

func (x *Executor) createAll(ctx context.Context, bulks []TypedBulk, order []int, step int) ([]TypedBulk, error) {
	out := make([]TypedBulk, len(bulks))
	for _, i := range order {
		b := bulks[i]
		op, err := x.resolve(b.Type, ModeCreate, nil)
		if err != nil {
			return nil, err
		}
		result, err := x.run(ctx, b.Type, b.Entities, ModeCreate, step, op)
		if err != nil {
			return nil, err
		}
		out[i] = TypedBulk{Type: b.Type, Entities: result.Created}
	}
	return out, nil
}

func typeList(bulks []TypedBulk) string {
	names := make([]string, 0, len(bulks))
	for _, b := range bulks {
		if b.Type != nil {
			names = append(names, b.Type.Name)
		}
	}
	return strings.Join(names, ",")
}
