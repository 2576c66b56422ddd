package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/bulkstep/internal/chunk"
	"github.com/roach88/bulkstep/internal/model"
)

// DefaultStep is the default number of entities per chunk.
const DefaultStep = 1000

// Executor runs step operations against one store.
type Executor struct {
	adapter    Adapter
	transactor Transactor
	logger     *slog.Logger
	step       int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTransactor enables RunAtomic and CreateAllAtomic.
func WithTransactor(t Transactor) ExecutorOption {
	return func(x *Executor) {
		x.transactor = t
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(x *Executor) {
		x.logger = l
	}
}

// WithStep sets the chunk size used by the convenience operations.
//
// Default: 1000 (DefaultStep)
func WithStep(step int) ExecutorOption {
	return func(x *Executor) {
		x.step = step
	}
}

// NewExecutor creates an Executor over adapter.
func NewExecutor(adapter Adapter, opts ...ExecutorOption) *Executor {
	x := &Executor{
		adapter: adapter,
		logger:  slog.Default(),
		step:    DefaultStep,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Step returns the configured chunk size.
func (x *Executor) Step() int {
	return x.step
}

// batchOp applies one mode to one chunk.
type batchOp func(ctx context.Context, entities []*model.Entity) (Result, error)

// resolve picks the adapter operation for (t, mode, fields).
func (x *Executor) resolve(t *model.EntityType, mode Mode, fields []string) (batchOp, error) {
	switch mode {
	case ModeCreate:
		return func(ctx context.Context, entities []*model.Entity) (Result, error) {
			created, err := x.adapter.CreateMany(ctx, t, entities)
			if err != nil {
				return Result{}, err
			}
			if len(created) != len(entities) {
				return Result{}, fmt.Errorf("create returned %d entities for %d inputs", len(created), len(entities))
			}
			// Identities land on the caller's entities so live Refs resolve.
			for i, e := range created {
				if e != nil && e != entities[i] {
					entities[i].ID = e.ID
				}
				if !entities[i].Persisted() {
					return Result{}, fmt.Errorf("create returned %s without an identity", entities[i])
				}
			}
			return Result{Mode: ModeCreate, Created: entities}, nil
		}, nil

	case ModeUpdate:
		if len(fields) == 0 {
			return nil, &model.Error{
				Code:       model.ErrCodeConfiguration,
				Message:    "update requires at least one field",
				EntityType: t.Name,
				Mode:       mode.String(),
			}
		}
		if err := t.CheckFields(fields); err != nil {
			return nil, err
		}
		return func(ctx context.Context, entities []*model.Entity) (Result, error) {
			n, err := x.adapter.UpdateMany(ctx, t, entities, fields)
			if err != nil {
				return Result{}, err
			}
			return Result{Mode: ModeUpdate, Updated: n}, nil
		}, nil

	case ModeDelete:
		return func(ctx context.Context, entities []*model.Entity) (Result, error) {
			count, err := x.adapter.DeleteMany(ctx, t, entities)
			if err != nil {
				return Result{}, err
			}
			return Result{Mode: ModeDelete, Deleted: count}, nil
		}, nil

	default:
		return nil, &model.Error{
			Code:       model.ErrCodeConfiguration,
			Message:    fmt.Sprintf("unsupported mode %s", mode),
			EntityType: t.Name,
		}
	}
}

// validate checks everything that can fail before the first chunk.
func (x *Executor) validate(t *model.EntityType, entities []*model.Entity, mode Mode, step int) error {
	if t == nil {
		return model.NewConfigurationError("entity type is required")
	}
	if mode < ModeCreate || mode > ModeDelete {
		return &model.Error{
			Code:       model.ErrCodeConfiguration,
			Message:    fmt.Sprintf("unsupported mode %s", mode),
			EntityType: t.Name,
		}
	}
	if step < 1 {
		return &model.Error{
			Code:       model.ErrCodeConfiguration,
			Message:    fmt.Sprintf("step must be a positive integer, got %d", step),
			EntityType: t.Name,
			Mode:       mode.String(),
		}
	}
	if err := model.CheckHomogeneous(t, entities); err != nil {
		return err
	}
	seen := make(map[*model.Entity]int, len(entities))
	for i, e := range entities {
		if mode == ModeCreate {
			if first, dup := seen[e]; dup {
				return &model.Error{
					Code:       model.ErrCodeConfiguration,
					Message:    fmt.Sprintf("entity at index %d repeats the entity at index %d", i, first),
					EntityType: t.Name,
					Mode:       mode.String(),
				}
			}
			seen[e] = i
		}
		switch {
		case mode == ModeCreate && e.Persisted():
			return &model.Error{
				Code:       model.ErrCodeConfiguration,
				Message:    fmt.Sprintf("cannot create %s: already persisted", e),
				EntityType: t.Name,
				Mode:       mode.String(),
			}
		case mode != ModeCreate && !e.Persisted():
			return &model.Error{
				Code:       model.ErrCodeConfiguration,
				Message:    fmt.Sprintf("cannot %s %s: not persisted", mode, e),
				EntityType: t.Name,
				Mode:       mode.String(),
			}
		}
	}
	return nil
}

// Run applies mode to entities of type t in chunks of at most step.
//
// Chunks are applied in order with no enclosing transaction. When chunk k
// fails, chunks before k stay applied, the partial result is discarded and
// the returned StoreOperationError records k and the number of chunks
// applied. Update requires fields; create and delete ignore them.
func (x *Executor) Run(ctx context.Context, t *model.EntityType, entities []*model.Entity, mode Mode, step int, fields ...string) (Result, error) {
	op, err := x.prepare(t, entities, mode, step, fields)
	if err != nil {
		return Result{}, err
	}
	return x.run(ctx, t, entities, mode, step, op)
}

func (x *Executor) prepare(t *model.EntityType, entities []*model.Entity, mode Mode, step int, fields []string) (batchOp, error) {
	if err := x.validate(t, entities, mode, step); err != nil {
		return nil, err
	}
	return x.resolve(t, mode, fields)
}

func (x *Executor) run(ctx context.Context, t *model.EntityType, entities []*model.Entity, mode Mode, step int, op batchOp) (Result, error) {
	chunks, err := chunk.Split(entities, step)
	if err != nil {
		return Result{}, err
	}
	total := chunk.Count(len(entities), step)

	result := Flatten(mode)
	applied := 0
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, model.NewStoreOperationError(t.Name, mode.String(), i, applied, err)
		}

		partial, err := op(ctx, c)
		if err != nil {
			x.logger.Error("chunk failed",
				"entity_type", t.Name,
				"mode", mode.String(),
				"chunk", i+1,
				"chunks", total,
				"error", err,
			)
			return Result{}, model.NewStoreOperationError(t.Name, mode.String(), i, applied, err)
		}
		result.add(partial)
		applied++

		x.logger.Debug("chunk applied",
			"entity_type", t.Name,
			"mode", mode.String(),
			"chunk", i+1,
			"chunks", total,
			"rows", partial.Rows(),
		)
	}

	x.logger.Info("step operation complete",
		"entity_type", t.Name,
		"mode", mode.String(),
		"chunks", total,
		"rows", result.Rows(),
	)
	return result, nil
}

// RunAtomic is Run inside one transaction. Either every chunk is applied
// and committed, or none is: on failure the transaction is rolled back and
// identities assigned by this call are cleared again.
func (x *Executor) RunAtomic(ctx context.Context, t *model.EntityType, entities []*model.Entity, mode Mode, step int, fields ...string) (Result, error) {
	op, err := x.prepare(t, entities, mode, step, fields)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = x.atomically(ctx, t.Name, mode, func(txCtx context.Context) error {
		var runErr error
		result, runErr = x.run(txCtx, t, entities, mode, step, op)
		return runErr
	})
	if err != nil {
		if mode == ModeCreate {
			clearIdentities(entities)
		}
		return Result{}, err
	}
	return result, nil
}

// atomically runs fn inside a transaction opened by the Transactor. The
// transaction is released on every exit path, including a panic in fn.
func (x *Executor) atomically(ctx context.Context, entityType string, mode Mode, fn func(ctx context.Context) error) error {
	if x.transactor == nil {
		return &model.Error{
			Code:       model.ErrCodeConfiguration,
			Message:    "atomic execution requires a transactor",
			EntityType: entityType,
			Mode:       mode.String(),
		}
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger := x.logger.With("run_id", runID.String())

	txCtx, tx, err := x.transactor.Begin(ctx)
	if err != nil {
		return model.NewStoreOperationError(entityType, mode.String(), 0, 0, fmt.Errorf("begin transaction: %w", err))
	}
	logger.Debug("transaction opened", "entity_type", entityType, "mode", mode.String())

	released := false
	defer func() {
		if !released {
			_ = tx.Rollback()
		}
	}()

	if err := fn(txCtx); err != nil {
		released = true
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback failed", "entity_type", entityType, "error", rbErr)
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		logger.Warn("transaction rolled back",
			"entity_type", entityType,
			"mode", mode.String(),
			"error", err,
		)
		return err
	}

	released = true
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return &model.Error{
			Code:       model.ErrCodeStoreOperation,
			Message:    "commit failed",
			EntityType: entityType,
			Mode:       mode.String(),
			Err:        err,
		}
	}
	logger.Info("transaction committed", "entity_type", entityType, "mode", mode.String())
	return nil
}

func clearIdentities(entities []*model.Entity) {
	for _, e := range entities {
		e.ID = nil
	}
}

// CreateInSteps creates entities in chunks of the configured step and
// returns them carrying identities, in input order.
func (x *Executor) CreateInSteps(ctx context.Context, t *model.EntityType, entities []*model.Entity) ([]*model.Entity, error) {
	result, err := x.Run(ctx, t, entities, ModeCreate, x.step)
	if err != nil {
		return nil, err
	}
	return result.Created, nil
}

// UpdateInSteps writes fields of entities in chunks of the configured step
// and returns the number of rows updated.
func (x *Executor) UpdateInSteps(ctx context.Context, t *model.EntityType, entities []*model.Entity, fields ...string) (int64, error) {
	result, err := x.Run(ctx, t, entities, ModeUpdate, x.step, fields...)
	if err != nil {
		return 0, err
	}
	return result.Updated, nil
}

// DeleteInSteps deletes entities in chunks of the configured step and
// returns the total and per-type counts, including cascaded rows.
func (x *Executor) DeleteInSteps(ctx context.Context, t *model.EntityType, entities []*model.Entity) (DeleteCount, error) {
	result, err := x.Run(ctx, t, entities, ModeDelete, x.step)
	if err != nil {
		return DeleteCount{}, err
	}
	return result.Deleted, nil
}
