package flatgeobuf

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestPackedTreeSize(t *testing.T) {
	tests := []struct {
		items    int
		nodeSize uint16
		nodes    int64
	}{
		{1, 16, 2},
		{2, 16, 3},
		{16, 16, 17},
		{17, 16, 20},
		{256, 16, 273},
		{5, 2, 11},
	}
	for _, tt := range tests {
		got, err := PackedTreeSize(tt.items, tt.nodeSize)
		if err != nil {
			t.Fatalf("PackedTreeSize(%d, %d): %v", tt.items, tt.nodeSize, err)
		}
		if got != tt.nodes*nodeItemSize {
			t.Errorf("PackedTreeSize(%d, %d): expected %d, got %d", tt.items, tt.nodeSize, tt.nodes*nodeItemSize, got)
		}
	}

	if _, err := PackedTreeSize(10, 1); !errors.Is(err, ErrInvalidNodeSize) {
		t.Errorf("expected ErrInvalidNodeSize, got %v", err)
	}
	if _, err := PackedTreeSize(0, 16); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

// decodeTree reads every node of an encoded tree.
func decodeTree(t *testing.T, tree *PackedTree) []treeNode {
	t.Helper()
	var buf bytes.Buffer
	n, err := tree.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != tree.Size() || int64(buf.Len()) != tree.Size() {
		t.Fatalf("expected %d bytes, wrote %d (buffer %d)", tree.Size(), n, buf.Len())
	}
	nodes := make([]treeNode, tree.Size()/nodeItemSize)
	for i := range nodes {
		nodes[i] = readTreeNode(buf.Bytes(), i)
	}
	return nodes
}

func TestNewPackedTree_Layout(t *testing.T) {
	entries := make([]IndexEntry, 5)
	for i := range entries {
		x := float64(i)
		entries[i] = IndexEntry{Box: Box{x, x, x + 1, x + 1}, Scan: i, Offset: uint64(i * 100)}
	}

	tree, err := NewPackedTree(entries, 2)
	if err != nil {
		t.Fatalf("NewPackedTree failed: %v", err)
	}
	nodes := decodeTree(t, tree)
	if len(nodes) != 11 {
		t.Fatalf("expected 11 nodes, got %d", len(nodes))
	}

	// root | level 2 (2) | level 1 (3) | leaves (5)
	wantOffsets := []uint64{1, 3, 5, 6, 8, 10, 0, 100, 200, 300, 400}
	for i, want := range wantOffsets {
		if got := nodes[i].offset; got != want {
			t.Errorf("node %d: expected offset %d, got %d", i, want, got)
		}
	}

	if got, want := nodes[0].box, (Box{0, 0, 5, 5}); got != want {
		t.Errorf("expected root box %v, got %v", want, got)
	}
	if got := tree.Extent(); got != nodes[0].box {
		t.Errorf("expected extent %v, got %v", nodes[0].box, got)
	}
	if got, want := nodes[5].box, entries[4].Box; got != want {
		t.Errorf("expected last parent box %v, got %v", want, got)
	}
	for i, e := range entries {
		if got := nodes[6+i].box; got != e.Box {
			t.Errorf("leaf %d: expected %v, got %v", i, e.Box, got)
		}
	}
}

func TestNewPackedTree_SingleItem(t *testing.T) {
	entries := []IndexEntry{{Box: Box{7, 47, 7, 47}}}

	tree, err := NewPackedTree(entries, DefaultNodeSize)
	if err != nil {
		t.Fatalf("NewPackedTree failed: %v", err)
	}
	nodes := decodeTree(t, tree)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].offset != 1 || nodes[0].box != entries[0].Box {
		t.Errorf("unexpected root %+v", nodes[0])
	}
}

func TestNewPackedTree_Invalid(t *testing.T) {
	entries := []IndexEntry{{Box: Box{0, 0, 1, 1}}}
	if _, err := NewPackedTree(entries, 1); !errors.Is(err, ErrInvalidNodeSize) {
		t.Errorf("expected ErrInvalidNodeSize, got %v", err)
	}
	if _, err := NewPackedTree(nil, 16); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}

func TestHilbertValue(t *testing.T) {
	extent := Box{0, 0, 10, 10}
	if v := hilbertValue(Box{0, 0, 0, 0}, extent); v != 0 {
		t.Errorf("expected origin at 0, got %d", v)
	}

	seen := make(map[uint32]bool)
	for _, b := range []Box{{0, 0, 0, 0}, {10, 0, 10, 0}, {0, 10, 0, 10}, {10, 10, 10, 10}, {5, 5, 5, 5}} {
		seen[hilbertValue(b, extent)] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct values, got %d", len(seen))
	}

	// A degenerate extent puts every centre on the origin.
	point := Box{3, 3, 3, 3}
	if v := hilbertValue(point, point); v != 0 {
		t.Errorf("expected 0 for a degenerate extent, got %d", v)
	}
}

func TestHilbertSort_Descending(t *testing.T) {
	entries := []IndexEntry{
		{Box: Box{0, 0, 0, 0}, Scan: 0},
		{Box: Box{10, 10, 10, 10}, Scan: 1},
		{Box: Box{0, 10, 0, 10}, Scan: 2},
		{Box: Box{10, 0, 10, 0}, Scan: 3},
	}
	extent := CalcExtent(entries)
	HilbertSort(entries, extent)

	for i := 1; i < len(entries); i++ {
		prev := hilbertValue(entries[i-1].Box, extent)
		cur := hilbertValue(entries[i].Box, extent)
		if prev < cur {
			t.Errorf("entry %d: hilbert %d before %d", i, prev, cur)
		}
	}
	if last := entries[len(entries)-1]; last.Scan != 0 {
		t.Errorf("expected origin last, got scan %d", last.Scan)
	}
}

func TestHilbertSort_StableTies(t *testing.T) {
	entries := make([]IndexEntry, 6)
	for i := range entries {
		entries[i] = IndexEntry{Box: Box{1, 1, 1, 1}, Scan: i}
	}
	HilbertSort(entries, CalcExtent(entries))

	for i, e := range entries {
		if e.Scan != i {
			t.Fatalf("position %d: expected scan %d, got %d", i, i, e.Scan)
		}
	}
}

func TestBox(t *testing.T) {
	b := EmptyBox()
	b.Expand(Box{1, 2, 3, 4})
	b.Expand(Box{-1, 3, 2, 6})

	if want := (Box{-1, 2, 3, 6}); b != want {
		t.Fatalf("expected %v, got %v", want, b)
	}
	if !b.Contains(Box{0, 3, 1, 4}) {
		t.Error("expected inner box to be contained")
	}
	if b.Contains(Box{0, 3, 4, 4}) {
		t.Error("expected overlapping box not to be contained")
	}
	if !b.Intersects(Box{3, 6, 9, 9}) {
		t.Error("expected corner touch to intersect")
	}
	if b.Intersects(Box{4, 0, 5, 1}) {
		t.Error("expected disjoint boxes not to intersect")
	}

	for _, empty := range []Box{EmptyBox(), {1, 1, -1, -1}, {math.NaN(), math.NaN(), math.NaN(), math.NaN()}} {
		if !empty.IsEmpty() {
			t.Errorf("expected %v to be empty", empty)
		}
		grown := b
		grown.Expand(empty)
		if grown != b {
			t.Errorf("expanding by %v changed %v to %v", empty, b, grown)
		}
	}
	if (Box{2, 2, 2, 2}).IsEmpty() {
		t.Error("expected a point box not to be empty")
	}
}
