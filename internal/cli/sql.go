package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Params []string
}

// SQLResult is a raw query result.
type SQLResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <query>",
		Short: "Run a raw SQL query against the database",
		Long: `Run a raw SQL query and print the column names and rows.

Named parameters are written :name in the query and bound with --param
name=value. Integer and decimal values bind as numbers, anything else as
text.

Example:
  bulkstep sql --db ./shop.db --schema ./schema "SELECT id, title FROM book"
  bulkstep sql "SELECT * FROM book WHERE author = :a" --param a=3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "named parameter as name=value (repeatable)")

	return cmd
}

func runSQL(opts *SQLOptions, query string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	params, err := parseParams(opts.Params)
	if err != nil {
		return s.formatter.FailCode(ExitCommandError, ErrCodeInput, "invalid parameter", err)
	}

	if err := s.open(); err != nil {
		return err
	}
	defer s.close()

	columns, rows, err := s.store.Execute(cmd.Context(), query, params)
	if err != nil {
		return s.formatter.Fail(ExitFailure, "query failed", err)
	}

	result := SQLResult{Columns: columns, Rows: rows}
	return s.formatter.Emit(result, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(columns, "\t"))
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, v := range row {
				if v == nil {
					cells[i] = "NULL"
					continue
				}
				cells[i] = fmt.Sprint(v)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		return tw.Flush()
	})
}

// parseParams turns name=value pairs into named query parameters.
func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for _, p := range raw {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q must be name=value", p)
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			params[name] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[name] = f
		} else {
			params[name] = value
		}
	}
	return params, nil
}
