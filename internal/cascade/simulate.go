// Package cascade predicts what a delete would remove without performing it.
//
// The simulator walks the registry's foreign keys breadth-first from a seed
// set. Every round asks the store, through a Finder, for the rows of each
// dependent type that reference entities discovered in the previous round.
// Rows reached through a cascading foreign key join the plan and seed the
// next round; rows reached through a restrict or no_action foreign key are
// reported as blockers. The walk stops when a round discovers nothing new.
package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/bulkstep/internal/chunk"
	"github.com/roach88/bulkstep/internal/model"
)

// DefaultLookupStep bounds the number of identities per Finder call.
const DefaultLookupStep = 500

// Finder is the store's read-only cascade primitive.
type Finder interface {
	// FindReferencing returns the persisted rows of dependent whose fk
	// column holds any of ids, in a stable order.
	FindReferencing(ctx context.Context, dependent *model.EntityType, fk model.ForeignKey, ids []model.Value) ([]*model.Entity, error)
}

// Seed is a set of entities of one type to simulate deleting.
type Seed struct {
	Type     *model.EntityType
	Entities []*model.Entity
}

// Simulator computes cascade plans. It never writes to the store.
type Simulator struct {
	reg        *model.Registry
	finder     Finder
	logger     *slog.Logger
	lookupStep int
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SimulatorOption {
	return func(s *Simulator) {
		s.logger = l
	}
}

// WithLookupStep sets the number of identities per Finder call.
//
// Default: 500 (DefaultLookupStep)
func WithLookupStep(n int) SimulatorOption {
	return func(s *Simulator) {
		s.lookupStep = n
	}
}

// NewSimulator creates a Simulator over the types of reg.
func NewSimulator(reg *model.Registry, finder Finder, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		reg:        reg,
		finder:     finder,
		logger:     slog.Default(),
		lookupStep: DefaultLookupStep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulate computes the plan for deleting entities of type t.
//
// Seeds must all be of type t (TypeMismatchError otherwise). Transient seeds
// are included in the plan but cannot be referenced by stored rows, so they
// contribute no dependents. An empty seed set yields an empty plan.
func (s *Simulator) Simulate(ctx context.Context, t *model.EntityType, entities []*model.Entity) (*Plan, error) {
	if t == nil {
		return nil, model.NewConfigurationError("entity type is required")
	}
	if _, err := s.reg.Lookup(t.Name); err != nil {
		return nil, err
	}
	if err := model.CheckHomogeneous(t, entities); err != nil {
		return nil, err
	}
	if s.lookupStep < 1 {
		return nil, model.NewConfigurationError("lookup step must be a positive integer, got %d", s.lookupStep)
	}

	plan := newPlan()
	frontier := map[string][]model.Value{}
	var frontierOrder []string
	for _, e := range entities {
		if plan.add(e) && e.Persisted() {
			if _, ok := frontier[t.Name]; !ok {
				frontierOrder = append(frontierOrder, t.Name)
			}
			frontier[t.Name] = append(frontier[t.Name], e.ID)
		}
	}

	round := 0
	for len(frontierOrder) > 0 {
		round++
		next := map[string][]model.Value{}
		var nextOrder []string

		for _, name := range frontierOrder {
			ids := frontier[name]
			for _, dep := range s.reg.Dependents(name) {
				if dep.ForeignKey.OnDelete == model.OnDeleteSetNull {
					continue
				}
				rows, err := s.lookup(ctx, dep, ids)
				if err != nil {
					return nil, err
				}
				for _, row := range rows {
					if !dep.ForeignKey.Cascades() {
						plan.addRestricted(row, dep.ForeignKey.OnDelete)
						continue
					}
					if plan.add(row) {
						depName := dep.Type.Name
						if _, ok := next[depName]; !ok {
							nextOrder = append(nextOrder, depName)
						}
						next[depName] = append(next[depName], row.ID)
					}
				}
			}
		}

		s.logger.Debug("cascade round",
			"entity_type", t.Name,
			"round", round,
			"types", nextOrder,
		)
		frontier, frontierOrder = next, nextOrder
	}

	plan.pruneRestricted()
	s.logger.Debug("cascade simulated",
		"entity_type", t.Name,
		"rows", plan.Total(),
		"rounds", round,
	)
	return plan, nil
}

func (s *Simulator) lookup(ctx context.Context, dep model.Dependent, ids []model.Value) ([]*model.Entity, error) {
	chunks, err := chunk.Split(ids, s.lookupStep)
	if err != nil {
		return nil, err
	}
	var out []*model.Entity
	for _, c := range chunks {
		rows, err := s.finder.FindReferencing(ctx, dep.Type, dep.ForeignKey, c)
		if err != nil {
			return nil, fmt.Errorf("find %s referencing via %s: %w", dep.Type.Name, dep.ForeignKey.Field, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// MultiSimulate runs Simulate once per seed and merges the plans by type.
func (s *Simulator) MultiSimulate(ctx context.Context, seeds []Seed) (*Plan, error) {
	plans := make([]*Plan, 0, len(seeds))
	for _, seed := range seeds {
		p, err := s.Simulate(ctx, seed.Type, seed.Entities)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return Merge(plans...), nil
}
