// Package gpkgtest builds small GeoPackage files for tests.
package gpkgtest

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"github.com/tingold/gpkg-cloudformats/gpkg"
)

const metadataSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
  srs_name TEXT NOT NULL,
  srs_id INTEGER PRIMARY KEY,
  organization TEXT NOT NULL,
  organization_coordsys_id INTEGER NOT NULL,
  definition TEXT NOT NULL,
  description TEXT
);
CREATE TABLE gpkg_contents (
  table_name TEXT NOT NULL PRIMARY KEY,
  data_type TEXT NOT NULL,
  identifier TEXT UNIQUE,
  description TEXT DEFAULT '',
  last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
  min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
  srs_id INTEGER
);
CREATE TABLE gpkg_geometry_columns (
  table_name TEXT NOT NULL,
  column_name TEXT NOT NULL,
  geometry_type_name TEXT NOT NULL,
  srs_id INTEGER NOT NULL,
  z TINYINT NOT NULL,
  m TINYINT NOT NULL,
  CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
);
INSERT INTO gpkg_spatial_ref_sys VALUES
  ('WGS 84 geodetic', 4326, 'EPSG', 4326, 'undefined', NULL),
  ('CH1903+ / LV95', 2056, 'EPSG', 2056, 'undefined', NULL);
`

// Table describes a feature table to create.
type Table struct {
	Name           string
	Columns        string // column definitions, geometry column included
	GeometryColumn string
	GeometryType   string
	SRID           int
}

// Open creates an empty GeoPackage under t.TempDir and returns the open
// database and its path.
func Open(t testing.TB) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.gpkg")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	Exec(t, db, metadataSchema)
	return db, path
}

// Exec runs one or more statements and fails the test on error.
func Exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// CreateTable creates a feature table and registers it in gpkg_contents and
// gpkg_geometry_columns.
func CreateTable(t testing.TB, db *sql.DB, table Table) {
	t.Helper()

	Exec(t, db, "CREATE TABLE "+gpkg.QuoteIdent(table.Name)+" ("+table.Columns+")")
	Exec(t, db, "INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)",
		table.Name, table.Name, table.SRID)
	Exec(t, db, "INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)",
		table.Name, table.GeometryColumn, table.GeometryType, table.SRID)
}

// Insert inserts one row per entry of rows into the named columns.
func Insert(t testing.TB, db *sql.DB, table string, columns []string, rows ...[]any) {
	t.Helper()

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = gpkg.QuoteIdent(c)
	}
	query := "INSERT INTO " + gpkg.QuoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	for _, row := range rows {
		Exec(t, db, query, row...)
	}
}

// Blob encodes geom as a GeoPackage geometry blob.
func Blob(t testing.TB, geom orb.Geometry, srid int32) []byte {
	t.Helper()
	b, err := gpkg.EncodeGeometry(geom, srid)
	if err != nil {
		t.Fatalf("encode geometry: %v", err)
	}
	return b
}
