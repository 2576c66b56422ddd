package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Execute runs a raw statement and returns the column names and rows.
// Named parameters use :name syntax and are bound from params. Column names
// are returned even when no row matches. Text values come back as strings.
func (s *Store) Execute(ctx context.Context, query string, params map[string]any) ([]string, [][]any, error) {
	conn := s.conn(ctx)

	var rows *sqlx.Rows
	var err error
	if len(params) > 0 {
		rows, err = sqlx.NamedQueryContext(ctx, conn, query, params)
	} else {
		rows, err = conn.QueryxContext(ctx, query)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("execute: columns: %w", err)
	}
	if columns == nil {
		columns = []string{}
	}

	out := [][]any{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, nil, fmt.Errorf("execute: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("execute: %w", err)
	}

	s.logger.Debug("raw query executed",
		"columns", len(columns),
		"rows", len(out),
	)
	return columns, out, nil
}
