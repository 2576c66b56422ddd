package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstep/internal/bulk"
	"github.com/roach88/bulkstep/internal/loadfile"
	"github.com/roach88/bulkstep/internal/model"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Step   int
	Atomic bool
}

// TypeCreated reports the rows created for one type.
type TypeCreated struct {
	Type    string `json:"type"`
	Created int    `json:"created"`
	IDs     []any  `json:"ids"`
}

// ImportResult is the outcome of an import, in document order.
type ImportResult struct {
	Types  []TypeCreated `json:"types"`
	Total  int           `json:"total"`
	Atomic bool          `json:"atomic"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create every row of a YAML document",
		Long: `Create every row of a YAML import document in dependency order.

Types are created referenced-first, each in chunks of --step rows. Rows
refer to each other with {$ref: key}; created identities are filled in
before dependent types are written. With --atomic (the default) a failure
rolls back the whole import.

Example:
  bulkstep import --db ./shop.db --schema ./schema rows.yaml
  bulkstep import --step 500 --atomic=false rows.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Step, "step", 0, "rows per chunk (default from config)")
	cmd.Flags().BoolVar(&opts.Atomic, "atomic", true, "roll back the whole import on failure")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	doc, err := loadfile.Load(s.reg, path)
	if err != nil {
		return s.formatter.FailCode(ExitCommandError, ErrCodeInput, "failed to read import file", err)
	}
	s.formatter.VerboseLog("Read %d row(s) of %d type(s) from %s", doc.Count(), len(doc.Bulks), path)

	if err := s.open(); err != nil {
		return err
	}
	defer s.close()

	atomic := s.cfg.Atomic
	if cmd.Flags().Changed("atomic") {
		atomic = opts.Atomic
	}
	step := s.step(opts.Step)
	x := s.executor(step)

	var created []bulk.TypedBulk
	if atomic {
		created, err = x.CreateAllAtomic(cmd.Context(), doc.Bulks, step)
	} else {
		created, err = x.CreateAll(cmd.Context(), doc.Bulks, step)
	}
	if err != nil {
		return s.formatter.Fail(ExitFailure, "import failed", err)
	}

	result := ImportResult{Types: []TypeCreated{}, Atomic: atomic}
	for _, b := range created {
		ids := make([]any, len(b.Entities))
		for i, e := range b.Entities {
			ids[i] = model.Interface(e.ID)
		}
		result.Types = append(result.Types, TypeCreated{Type: b.Type.Name, Created: len(b.Entities), IDs: ids})
		result.Total += len(b.Entities)
	}
	s.logger.Info("import complete", "rows", result.Total, "types", len(result.Types), "atomic", atomic)

	return s.formatter.Emit(result, func(w io.Writer) error {
		for _, tc := range result.Types {
			fmt.Fprintf(w, "%s: %d created\n", tc.Type, tc.Created)
		}
		_, err := fmt.Fprintf(w, "total: %d\n", result.Total)
		return err
	})
}
