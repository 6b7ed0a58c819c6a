package schema

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/pgpool"
)

// Introspector reads the current column name/type pairs of a source table
// from the metadata catalog. Pure read, no side effects.
type Introspector struct {
	pool *pgpool.Pool
}

func NewIntrospector(pool *pgpool.Pool) *Introspector {
	return &Introspector{pool: pool}
}

const columnsQuery = `
	SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_name = $1
	ORDER BY ordinal_position
`

// GetSchema returns the table's columns in declaration order. A table that is
// missing from the catalog yields a SchemaError.
func (i *Introspector) GetSchema(ctx context.Context, table string) (models.SchemaMap, error) {
	var schema models.SchemaMap

	err := i.pool.With(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, columnsQuery, table)
		if err != nil {
			return errors.Wrap(err, "query information_schema.columns")
		}
		defer rows.Close()

		for rows.Next() {
			var col models.ColumnDef
			if err := rows.Scan(&col.Name, &col.DataType); err != nil {
				return errors.Wrap(err, "scan column definition")
			}
			schema.Columns = append(schema.Columns, col)
		}
		return rows.Err()
	})
	if err != nil {
		return models.SchemaMap{}, &models.SchemaError{Table: table, Err: err}
	}
	if len(schema.Columns) == 0 {
		return models.SchemaMap{}, &models.SchemaError{Table: table, Err: errors.New("table not found in catalog")}
	}
	return schema, nil
}
