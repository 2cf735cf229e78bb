package gpkg

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Queryer is the read-only part of *sql.DB, *sql.Conn and *sql.Tx used here.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column describes one column of a feature table.
type Column struct {
	Name         string     // Column name
	DeclaredType string     // Declared SQL type as written in the schema
	Type         SourceType // Coarse storage class
	NotNull      bool       // Column has a NOT NULL constraint
	Width        int        // Declared length, -1 when absent
	Precision    int        // Declared precision, -1 when absent
	Scale        int        // Declared scale, -1 when absent
}

// Nullable reports whether the column may hold NULL.
func (c Column) Nullable() bool {
	return !c.NotNull
}

// QuoteIdent quotes a SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// parseDeclaredType splits "NUMERIC(10, 2)" into its base type and size
// arguments.
func parseDeclaredType(declared string) (base string, width, precision, scale int) {
	width, precision, scale = -1, -1, -1
	base = strings.ToUpper(strings.TrimSpace(declared))

	open := strings.IndexByte(base, '(')
	if open < 0 {
		return base, width, precision, scale
	}
	args := strings.TrimSuffix(strings.TrimSpace(base[open+1:]), ")")
	base = strings.TrimSpace(base[:open])

	parts := strings.Split(args, ",")
	first, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return base, width, precision, scale
	}
	switch sourceTypeOf(base) {
	case SourceDouble, SourceFloat:
		precision = first
		if len(parts) > 1 {
			if s, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				scale = s
			}
		}
	default:
		width = first
	}
	return base, width, precision, scale
}

// TableColumns returns the columns of table in declaration order.
func TableColumns(ctx context.Context, db Queryer, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+QuoteIdent(table)+")")
	if err != nil {
		return nil, errors.Wrapf(err, "gpkg: table_info %s", table)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid      int
			name     string
			declared sql.NullString
			notNull  int
			dflt     any
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declared, &notNull, &dflt, &pk); err != nil {
			return nil, errors.Wrapf(err, "gpkg: scan table_info %s", table)
		}
		base, width, precision, scale := parseDeclaredType(declared.String)
		columns = append(columns, Column{
			Name:         name,
			DeclaredType: declared.String,
			Type:         sourceTypeOf(base),
			NotNull:      notNull != 0,
			Width:        width,
			Precision:    precision,
			Scale:        scale,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "gpkg: table_info %s", table)
	}
	if len(columns) == 0 {
		return nil, errors.Wrapf(ErrNoColumns, "%s", table)
	}
	return columns, nil
}

// Rows streams the rows of one feature table. Values are returned in the
// column order reported by Columns.
type Rows struct {
	rows      *sql.Rows
	columns   []Column
	geomIndex int
	values    []any
	dest      []any
}

// QueryRows runs a full, unordered scan over the descriptor's table.
func QueryRows(ctx context.Context, db Queryer, table TableDescriptor) (*Rows, error) {
	columns, err := TableColumns(ctx, db, table.Name)
	if err != nil {
		return nil, err
	}

	r := &Rows{
		columns:   columns,
		geomIndex: -1,
		values:    make([]any, len(columns)),
		dest:      make([]any, len(columns)),
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = QuoteIdent(c.Name)
		r.dest[i] = &r.values[i]
		if table.HasGeometry() && strings.EqualFold(c.Name, table.GeometryColumn) {
			r.geomIndex = i
		}
	}

	query := "SELECT " + strings.Join(names, ", ") + " FROM " + QuoteIdent(table.Name)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "gpkg: query %s", table.Name)
	}
	r.rows = rows
	return r, nil
}

// Columns returns every column of the table, the geometry column included.
func (r *Rows) Columns() []Column {
	return r.columns
}

// GeometryIndex returns the position of the geometry column, or -1.
func (r *Rows) GeometryIndex() int {
	return r.geomIndex
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	return r.rows.Next()
}

// Values scans the current row. The returned slice is reused by the next
// call.
func (r *Rows) Values() ([]any, error) {
	for i := range r.values {
		r.values[i] = nil
	}
	if err := r.rows.Scan(r.dest...); err != nil {
		return nil, errors.Wrap(err, "gpkg: scan row")
	}
	return r.values, nil
}

// GeometryBlob returns the raw geometry blob of a scanned row, or nil when
// the table has no geometry column or the value is NULL.
func (r *Rows) GeometryBlob(values []any) []byte {
	if r.geomIndex < 0 {
		return nil
	}
	switch v := values[r.geomIndex].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// Err returns the error, if any, that was encountered during iteration.
func (r *Rows) Err() error {
	return r.rows.Err()
}

// Close releases the underlying result set.
func (r *Rows) Close() error {
	return r.rows.Close()
}
