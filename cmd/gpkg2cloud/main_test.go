package main

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/tingold/gpkg-cloudformats/internal/gpkgtest"
)

func TestParseTables(t *testing.T) {
	names, err := parseTables(`"roads"; "rivers";"land use"`)
	require.NoError(t, err)
	require.Equal(t, []string{"roads", "rivers", "land use"}, names)

	for _, bad := range []string{`roads`, `"roads";rivers`, `""`, `"roads";`, `"  "`} {
		_, err := parseTables(bad)
		require.Error(t, err, bad)
	}
}

func TestParseFlags(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.gpkg")
	require.NoError(t, os.WriteFile(input, nil, 0o644))

	cfg, err := parseFlags([]string{"--input", input, "--output", dir, "--tables", `"a";"b"`, "--format", "Parquet"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, cfg.tables)
	require.Equal(t, "parquet", cfg.format)
	require.Equal(t, "gpkg", cfg.provider)
	require.Equal(t, 16, cfg.indexNodeSize)

	for name, args := range map[string][]string{
		"no input":       {"--output", dir},
		"missing input":  {"--input", filepath.Join(dir, "nope.gpkg"), "--output", dir},
		"input is dir":   {"--input", dir, "--output", dir},
		"output is file": {"--input", input, "--output", input},
		"bad format":     {"--input", input, "--output", dir, "--format", "shp"},
		"bad provider":   {"--input", input, "--output", dir, "--provider", "wfs"},
		"bad tables":     {"--input", input, "--output", dir, "--tables", "a;b"},
		"ili2db tables":  {"--input", input, "--output", dir, "--provider", "ili2db", "--tables", `"a"`},
		"unknown flag":   {"--verbose"},
	} {
		_, err := parseFlags(args, io.Discard)
		require.Error(t, err, name)
	}
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "error"} {
		_, err := newLogger(io.Discard, lvl)
		require.NoError(t, err, lvl)
	}
	_, err := newLogger(io.Discard, "trace")
	require.Error(t, err)
}

func TestReadOnlyDSN(t *testing.T) {
	dsn, err := readOnlyDSN("/data/in?#%.gpkg")
	require.NoError(t, err)
	require.Equal(t, "file:///data/in%3F%23%25.gpkg?mode=ro", dsn)

	dsn, err = readOnlyDSN("in.gpkg")
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	require.Equal(t, "file", u.Scheme)
	require.Empty(t, u.Host)
	require.Equal(t, filepath.ToSlash(filepath.Join(wd, "in.gpkg")), u.Path)
	require.Equal(t, "mode=ro", u.RawQuery)
}

func TestRealMain(t *testing.T) {
	db, input := gpkgtest.Open(t)
	gpkgtest.CreateTable(t, db, gpkgtest.Table{
		Name: "roads", Columns: "fid INTEGER PRIMARY KEY, geom LINESTRING, name TEXT",
		GeometryColumn: "geom", GeometryType: "LINESTRING", SRID: 2056,
	})
	gpkgtest.Insert(t, db, "roads", []string{"geom", "name"},
		[]any{gpkgtest.Blob(t, orb.LineString{{0, 0}, {1, 1}}, 2056), "main"})

	out := t.TempDir()
	require.Equal(t, 0, realMain([]string{"--input", input, "--output", out, "--log-level", "error"}))
	require.FileExists(t, filepath.Join(out, "roads.fgb"))

	require.Equal(t, 0, realMain([]string{"--input", input, "--output", out, "--format", "parquet", "--log-level", "error"}))
	require.FileExists(t, filepath.Join(out, "roads.parquet"))

	require.Equal(t, 1, realMain([]string{"--input", input, "--output", out, "--tables", `"nope"`, "--log-level", "error"}))
	require.Equal(t, 2, realMain([]string{"--input", input}))
}

func TestRealMain_SpecialCharactersInPath(t *testing.T) {
	db, src := gpkgtest.Open(t)
	gpkgtest.CreateTable(t, db, gpkgtest.Table{
		Name: "roads", Columns: "fid INTEGER PRIMARY KEY, geom LINESTRING",
		GeometryColumn: "geom", GeometryType: "LINESTRING", SRID: 2056,
	})
	gpkgtest.Insert(t, db, "roads", []string{"geom"},
		[]any{gpkgtest.Blob(t, orb.LineString{{0, 0}, {1, 1}}, 2056)})

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	input := filepath.Join(t.TempDir(), "in?#%.gpkg")
	require.NoError(t, os.WriteFile(input, data, 0o644))

	out := t.TempDir()
	require.Equal(t, 0, realMain([]string{"--input", input, "--output", out, "--log-level", "error"}))
	require.FileExists(t, filepath.Join(out, "roads.fgb"))
}
