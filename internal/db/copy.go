// Package db provides shared PostgreSQL helpers for bulk loads.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// DefaultCopyChunk is the number of rows sent per COPY when callers pass 0.
const DefaultCopyChunk = 1000

// CopyRows bulk-inserts items into table with the COPY protocol, chunk rows
// at a time. row converts one item into column values in the order of
// columns. The returned count covers the chunks that completed.
func CopyRows[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, chunk int, row func(T) []any) (int64, error) {
	if chunk <= 0 {
		chunk = DefaultCopyChunk
	}

	var total int64
	for start := 0; start < len(items); start += chunk {
		part := items[start:min(start+chunk, len(items))]
		n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(len(part), func(i int) ([]any, error) {
			return row(part[i]), nil
		}))
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s (rows %d-%d)", table, start+1, start+len(part))
		}
	}
	return total, nil
}
