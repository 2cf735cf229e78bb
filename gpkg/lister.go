package gpkg

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// TableLister discovers the feature tables of a connection.
type TableLister interface {
	ListTables(ctx context.Context, db Queryer) ([]TableDescriptor, error)
}

const contentsQuery = `
SELECT c.table_name,
       g.column_name,
       g.geometry_type_name,
       g.srs_id
  FROM gpkg_contents c
  JOIN gpkg_geometry_columns g
    ON c.table_name = g.table_name
 WHERE c.data_type = 'features'`

// ContentsLister lists feature tables registered in gpkg_contents. When
// Tables is non-empty only those tables are returned, and every name must
// exist.
type ContentsLister struct {
	Tables []string
}

// ListTables implements TableLister.
func (l ContentsLister) ListTables(ctx context.Context, db Queryer) ([]TableDescriptor, error) {
	query := contentsQuery
	args := make([]any, 0, len(l.Tables))
	if len(l.Tables) > 0 {
		query += " AND c.table_name IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(l.Tables)), ", ") + ")"
		for _, t := range l.Tables {
			args = append(args, t)
		}
	}
	query += " ORDER BY c.table_name"

	tables, err := queryDescriptors(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	if err := checkRequested(l.Tables, tables); err != nil {
		return nil, err
	}
	return tables, nil
}

const ili2dbQuery = `
SELECT t.tablename,
       g.column_name,
       g.geometry_type_name,
       g.srs_id
  FROM T_ILI2DB_TABLE_PROP t
  JOIN gpkg_geometry_columns g
    ON g.table_name = t.tablename
 WHERE t.setting = 'CLASS'
 ORDER BY t.tablename`

// Ili2dbLister lists the class tables of a GeoPackage written by ili2db,
// using its T_ILI2DB_TABLE_PROP metadata table.
type Ili2dbLister struct{}

// ListTables implements TableLister.
func (Ili2dbLister) ListTables(ctx context.Context, db Queryer) ([]TableDescriptor, error) {
	return queryDescriptors(ctx, db, ili2dbQuery)
}

func queryDescriptors(ctx context.Context, db Queryer, query string, args ...any) ([]TableDescriptor, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "gpkg: list tables")
	}
	defer rows.Close()

	var (
		tables []TableDescriptor
		seen   = make(map[string]bool)
	)
	for rows.Next() {
		var (
			name     string
			column   sql.NullString
			geomType sql.NullString
			srid     sql.NullInt64
		)
		if err := rows.Scan(&name, &column, &geomType, &srid); err != nil {
			return nil, errors.Wrap(err, "gpkg: scan table descriptor")
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		gt, err := ParseGeometryType(geomType.String)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s", name)
		}
		tables = append(tables, TableDescriptor{
			Name:           name,
			GeometryColumn: column.String,
			SRID:           int(srid.Int64),
			GeometryType:   gt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "gpkg: list tables")
	}
	return tables, nil
}

// checkRequested fails with ErrUnknownTables naming every requested table
// that was not found, in request order.
func checkRequested(requested []string, found []TableDescriptor) error {
	if len(requested) == 0 {
		return nil
	}
	have := make(map[string]bool, len(found))
	for _, t := range found {
		have[t.Name] = true
	}
	var missing []string
	for _, name := range requested {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrUnknownTables, strings.Join(missing, ", "))
	}
	return nil
}
