package bulk

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/bulkstep/internal/model"
)

// Mode is the mutation applied by a step operation.
type Mode int

const (
	ModeCreate Mode = iota + 1
	ModeUpdate
	ModeDelete
)

// String returns the lower-case mode name.
func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText renders the mode by name in JSON output.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode parses "create", "update" or "delete".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create":
		return ModeCreate, nil
	case "update":
		return ModeUpdate, nil
	case "delete":
		return ModeDelete, nil
	default:
		return 0, model.NewConfigurationError("unsupported mode %q", s)
	}
}

// DeleteCount is the outcome of a delete: the total number of rows removed
// and a per-type breakdown including rows the store removed by cascade.
type DeleteCount struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"by_type"`
}

// Add folds other into c, summing totals and per-type counts key-wise.
func (c *DeleteCount) Add(other DeleteCount) {
	c.Total += other.Total
	if len(other.ByType) == 0 {
		return
	}
	if c.ByType == nil {
		c.ByType = make(map[string]int64, len(other.ByType))
	}
	for k, v := range other.ByType {
		c.ByType[k] += v
	}
}

// Types returns the type names in the breakdown, sorted.
func (c DeleteCount) Types() []string {
	return slices.Sorted(maps.Keys(c.ByType))
}

// Adapter is the store's batch boundary, implemented once per store
// technology. Each method receives one chunk of entities of type t.
//
// CreateMany must return entities carrying identities, in input order and of
// input length. UpdateMany writes only the named fields and returns the
// number of rows updated. DeleteMany returns everything it removed,
// including rows the store cascaded.
type Adapter interface {
	CreateMany(ctx context.Context, t *model.EntityType, entities []*model.Entity) ([]*model.Entity, error)
	UpdateMany(ctx context.Context, t *model.EntityType, entities []*model.Entity, fields []string) (int64, error)
	DeleteMany(ctx context.Context, t *model.EntityType, entities []*model.Entity) (DeleteCount, error)
}

// Tx is an open transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor opens transactions. Begin returns a context carrying the new
// transaction; adapter calls made with that context run inside it.
type Transactor interface {
	Begin(ctx context.Context) (context.Context, Tx, error)
}
