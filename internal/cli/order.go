package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstep/internal/graph"
	"github.com/roach88/bulkstep/internal/model"
)

// OrderResult lists entity types so that every referenced type precedes
// the types referencing it.
type OrderResult struct {
	Order []string `json:"order"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order [types...]",
		Short: "Print the dependency order of entity types",
		Long: `Print entity types in the order they can be created: every type comes
after the types it references. Without arguments all schema types are
ordered. Fails when the foreign keys among the types form a cycle.

Example:
  bulkstep order --schema ./schema
  bulkstep order --schema ./schema Review Book Author`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runOrder(opts *RootOptions, names []string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}

	types := s.reg.Types()
	if len(names) > 0 {
		types = make([]*model.EntityType, 0, len(names))
		for _, name := range names {
			t, err := s.reg.Lookup(name)
			if err != nil {
				return s.formatter.Fail(ExitCommandError, "unknown type", err)
			}
			types = append(types, t)
		}
	}

	ordered, err := graph.TopologicalOrder(types)
	if err != nil {
		return s.formatter.Fail(ExitFailure, "cannot order types", err)
	}

	result := OrderResult{Order: graph.Names(ordered)}
	return s.formatter.Emit(result, func(w io.Writer) error {
		for i, name := range result.Order {
			if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, name); err != nil {
				return err
			}
		}
		return nil
	})
}
