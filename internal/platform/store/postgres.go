package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DefaultResourceTable is read when no table is configured.
const DefaultResourceTable = "fhir_resources"

// resourceQuery selects the current, non-deleted documents of table. The
// table needs a jsonb "resource" column and a boolean "deleted" column.
func resourceQuery(table string) string {
	return `SELECT resource FROM ` + pgx.Identifier{table}.Sanitize() +
		` WHERE NOT deleted ORDER BY resource->>'resourceType', resource->>'id'`
}

// LoadPostgres reads every resource document of table into memory.
func LoadPostgres(ctx context.Context, q queryable, table string, logger zerolog.Logger) ([]*fhir.Resource, error) {
	if table == "" {
		table = DefaultResourceTable
	}
	rows, err := q.Query(ctx, resourceQuery(table))
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []*fhir.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	logger.Info().Str("table", table).Int("resources", len(out)).Msg("corpus loaded from postgres")
	return out, nil
}

func scanResource(row pgx.Row) (*fhir.Resource, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	return fhir.ParseResource(doc)
}
