package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstep/internal/cascade"
	"github.com/roach88/bulkstep/internal/model"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Type string
	IDs  []string
}

// SimulateResult is a cascade plan plus the requested identities that
// matched no row.
type SimulateResult struct {
	cascade.Summary
	Missing []any `json:"missing,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Preview the rows a delete would remove",
		Long: `Preview a delete: list every row that deleting the given rows would
remove, including rows reached through cascading foreign keys. Rows whose
restrict foreign keys would block the delete are listed separately.
Nothing is written.

Example:
  bulkstep simulate --db ./shop.db --schema ./schema --type Author --id 1 --id 2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "entity type of the rows to delete (required)")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "identity of a row to delete (repeatable)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := s.open(); err != nil {
		return err
	}
	defer s.close()

	t, entities, missing, err := s.loadRows(cmd, opts.Type, opts.IDs)
	if err != nil {
		return err
	}

	plan, err := s.store.Collect(cmd.Context(), cascade.Seed{Type: t, Entities: entities})
	if err != nil {
		return s.formatter.Fail(ExitFailure, "simulation failed", err)
	}

	return s.formatter.Emit(SimulateResult{Summary: plan.Summary(), Missing: missing}, func(w io.Writer) error {
		if err := plan.Render(w); err != nil {
			return err
		}
		return writeMissing(w, t, missing)
	})
}

// loadRows resolves --type and --id into stored rows. Identities with no
// row are returned as missing.
func (s *session) loadRows(cmd *cobra.Command, typeName string, raw []string) (*model.EntityType, []*model.Entity, []any, error) {
	t, err := s.reg.Lookup(typeName)
	if err != nil {
		return nil, nil, nil, s.formatter.Fail(ExitCommandError, "unknown type", err)
	}
	ids, err := parseIDs(t, raw)
	if err != nil {
		return nil, nil, nil, s.formatter.Fail(ExitCommandError, "invalid identity", err)
	}

	entities, err := s.store.Load(cmd.Context(), t, ids)
	if err != nil {
		return nil, nil, nil, s.formatter.Fail(ExitFailure, "failed to load rows", err)
	}

	found := make(map[any]bool, len(entities))
	for _, e := range entities {
		found[model.Interface(e.ID)] = true
	}
	var missing []any
	for _, id := range ids {
		if v := model.Interface(id); !found[v] {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("rows not found", "type", t.Name, "ids", missing)
	}
	return t, entities, missing, nil
}

func writeMissing(w io.Writer, t *model.EntityType, missing []any) error {
	if len(missing) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "missing %s: %v\n", t.Name, missing)
	return err
}
