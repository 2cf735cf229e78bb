package flatgeobuf

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tingold/gpkg-cloudformats/gpkg"
	"github.com/tingold/gpkg-cloudformats/internal/gpkgtest"
)

// =============================================================================
// Test Data Generators
// =============================================================================

// generateBoxes creates n random boxes within [0, 1000) x [0, 1000).
func generateBoxes(r *rand.Rand, n int) []IndexEntry {
	entries := make([]IndexEntry, n)
	for i := range entries {
		x := r.Float64() * 1000
		y := r.Float64() * 1000
		size := r.Float64() * 5
		entries[i] = IndexEntry{Box: Box{x, y, x + size, y + size}, Scan: i, Size: 64}
	}
	return entries
}

// generatePolygons creates n random square polygons.
func generatePolygons(r *rand.Rand, n int, minX, maxX, minY, maxY float64) []orb.Polygon {
	polys := make([]orb.Polygon, n)
	for i := 0; i < n; i++ {
		x := minX + r.Float64()*(maxX-minX-0.1)
		y := minY + r.Float64()*(maxY-minY-0.1)
		size := 0.01 + r.Float64()*0.09
		polys[i] = orb.Polygon{{
			{x, y},
			{x + size, y},
			{x + size, y + size},
			{x, y + size},
			{x, y},
		}}
	}
	return polys
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkAppendProperties(b *testing.B) {
	cols := testColumns(gpkg.SourceInteger, gpkg.SourceText, gpkg.SourceDouble, gpkg.SourceBoolean, gpkg.SourceDate)
	values := []any{int64(42), "Bahnhofstrasse", 3.25, int64(1), "2024-05-12"}

	var buf []byte
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var err error
		buf, err = AppendProperties(buf[:0], cols, values)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildIndex(b *testing.B) {
	for _, n := range []int{1000, 100000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			source := generateBoxes(rand.New(rand.NewSource(42)), n)
			entries := make([]IndexEntry, n)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				copy(entries, source)
				HilbertSort(entries, CalcExtent(entries))
				if _, err := NewPackedTree(entries, DefaultNodeSize); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkWriteTable(b *testing.B) {
	db, _ := gpkgtest.Open(b)
	gpkgtest.CreateTable(b, db, gpkgtest.Table{
		Name: "parcels", Columns: "fid INTEGER PRIMARY KEY, geom POLYGON, name TEXT, area DOUBLE",
		GeometryColumn: "geom", GeometryType: "POLYGON", SRID: 2056,
	})

	r := rand.New(rand.NewSource(42))
	for i, poly := range generatePolygons(r, 2000, 0, 100, 0, 100) {
		gpkgtest.Insert(b, db, "parcels", []string{"geom", "name", "area"},
			[]any{gpkgtest.Blob(b, poly, 2056), fmt.Sprintf("parcel %d", i), poly.Bound().Left()})
	}
	table := gpkg.TableDescriptor{Name: "parcels", GeometryColumn: "geom", SRID: 2056, GeometryType: gpkg.GeometryPolygon}
	opts := &Options{IndexNodeSize: DefaultNodeSize, TempDir: b.TempDir()}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := WriteTable(context.Background(), db, table, io.Discard, opts); err != nil {
			b.Fatal(err)
		}
	}
}
