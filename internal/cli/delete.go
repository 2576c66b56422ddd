package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstep/internal/bulk"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Type   string
	IDs    []string
	Step   int
	DryRun bool
}

// DeleteResult reports the rows removed, per type.
type DeleteResult struct {
	bulk.DeleteCount
	Missing []any `json:"missing,omitempty"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete rows in chunks, reporting cascaded rows",
		Long: `Delete the given rows in chunks of --step inside one transaction.

The report counts every row removed, including rows deleted by cascading
foreign keys. If any chunk fails, nothing is deleted. A delete blocked by
a restrict foreign key fails without writing. --dry-run prints the plan
like simulate.

Example:
  bulkstep delete --db ./shop.db --schema ./schema --type Author --id 4 --id 9
  bulkstep delete --type Author --id 4 --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DryRun {
				return runSimulate(&SimulateOptions{RootOptions: opts.RootOptions, Type: opts.Type, IDs: opts.IDs}, cmd)
			}
			return runDelete(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "entity type of the rows to delete (required)")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "identity of a row to delete (repeatable)")
	cmd.Flags().IntVar(&opts.Step, "step", 0, "rows per chunk (default from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the cascade plan without deleting")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runDelete(opts *DeleteOptions, cmd *cobra.Command) error {
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

	step := s.step(opts.Step)
	res, err := s.executor(step).RunAtomic(cmd.Context(), t, entities, bulk.ModeDelete, step)
	if err != nil {
		return s.formatter.Fail(ExitFailure, "delete failed", err)
	}
	count := res.Deleted
	if count.ByType == nil {
		count.ByType = map[string]int64{}
	}
	s.logger.Info("delete complete", "type", t.Name, "rows", count.Total)

	return s.formatter.Emit(DeleteResult{DeleteCount: count, Missing: missing}, func(w io.Writer) error {
		for _, name := range count.Types() {
			fmt.Fprintf(w, "%s: %d deleted\n", name, count.ByType[name])
		}
		if _, err := fmt.Fprintf(w, "total: %d\n", count.Total); err != nil {
			return err
		}
		return writeMissing(w, t, missing)
	})
}
