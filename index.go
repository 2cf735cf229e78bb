package flatgeobuf

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/index"
	"github.com/pkg/errors"
)

// nodeItemSize is the on-disk size of one packed R-tree node:
// minX, minY, maxX, maxY as float64 and a uint64 offset.
const nodeItemSize = 40

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// EmptyBox returns a box that contains nothing and grows on Expand.
func EmptyBox() Box {
	return Box{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether b covers no point. Inverted and NaN boxes, as
// produced by empty geometries, are empty.
func (b Box) IsEmpty() bool {
	return !(b.MinX <= b.MaxX && b.MinY <= b.MaxY)
}

// Expand grows b to include o. Empty boxes are ignored.
func (b *Box) Expand(o Box) {
	if o.IsEmpty() {
		return
	}
	b.MinX = math.Min(b.MinX, o.MinX)
	b.MinY = math.Min(b.MinY, o.MinY)
	b.MaxX = math.Max(b.MaxX, o.MaxX)
	b.MaxY = math.Max(b.MaxY, o.MaxY)
}

// Contains reports whether o lies within b.
func (b Box) Contains(o Box) bool {
	return o.MinX >= b.MinX && o.MinY >= b.MinY && o.MaxX <= b.MaxX && o.MaxY <= b.MaxY
}

// Intersects reports whether b and o overlap.
func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && b.MinY <= o.MaxY && b.MaxX >= o.MinX && b.MaxY >= o.MinY
}

// Array returns the box as [minX, minY, maxX, maxY].
func (b Box) Array() []float64 {
	return []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// IndexEntry is one feature as seen by the spatial index.
type IndexEntry struct {
	Box    Box
	Scan   int    // position of the feature in scan order
	Size   uint32 // encoded size of the feature, size prefix included
	Offset uint64 // byte offset of the feature in the feature section
}

// CalcExtent returns the union of all entry boxes.
func CalcExtent(entries []IndexEntry) Box {
	extent := EmptyBox()
	for i := range entries {
		extent.Expand(entries[i].Box)
	}
	return extent
}

// nodeItem converts b to an index node pointing at offset.
func (b Box) nodeItem(offset uint64) index.NodeItem {
	return index.NewNodeItemWithCoordinates(offset, b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// hilbertValue places the centre of b on the Hilbert grid spanning extent.
func hilbertValue(b, extent Box) uint32 {
	return index.HilbertForNodeItem(b.nodeItem(0), index.HilbertMax,
		extent.MinX, extent.MinY, extent.MaxX-extent.MinX, extent.MaxY-extent.MinY)
}

// HilbertSort orders entries by descending Hilbert value of their box
// centres within extent. Equal values keep scan order.
func HilbertSort(entries []IndexEntry, extent Box) {
	values := make([]uint32, len(entries))
	for i := range entries {
		values[i] = hilbertValue(entries[i].Box, extent)
	}
	sort.Stable(byHilbert{entries, values})
}

type byHilbert struct {
	entries []IndexEntry
	values  []uint32
}

func (s byHilbert) Len() int           { return len(s.entries) }
func (s byHilbert) Less(i, j int) bool { return s.values[i] > s.values[j] }
func (s byHilbert) Swap(i, j int) {
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

// numTreeNodes counts the nodes of a packed R-tree over numItems leaves.
func numTreeNodes(numItems int, nodeSize uint16) (int, error) {
	if nodeSize < 2 {
		return 0, errors.Wrapf(ErrInvalidNodeSize, "%d", nodeSize)
	}
	if numItems <= 0 {
		return 0, errors.Wrap(ErrInvalidData, "packed tree needs at least one item")
	}

	n, numNodes := numItems, numItems
	for n != 1 {
		n = (n + int(nodeSize) - 1) / int(nodeSize)
		numNodes += n
	}
	return numNodes, nil
}

// PackedTreeSize returns the byte size of a packed R-tree over numItems
// features with the given fanout.
func PackedTreeSize(numItems int, nodeSize uint16) (int64, error) {
	numNodes, err := numTreeNodes(numItems, nodeSize)
	if err != nil {
		return 0, err
	}
	return int64(numNodes) * nodeItemSize, nil
}

// PackedTree is a static R-tree over boxes already in final feature order.
type PackedTree struct {
	tree   *index.PackedRTree
	extent Box
}

// NewPackedTree builds a packed R-tree. Leaves point at Entry.Offset;
// inner nodes point at the index of their first child node.
func NewPackedTree(entries []IndexEntry, nodeSize uint16) (*PackedTree, error) {
	if _, err := numTreeNodes(len(entries), nodeSize); err != nil {
		return nil, err
	}

	items := make([]index.NodeItem, len(entries))
	extent := EmptyBox()
	for i := range entries {
		items[i] = entries[i].Box.nodeItem(entries[i].Offset)
		extent.Expand(entries[i].Box)
	}
	return &PackedTree{
		tree:   index.NewPackedRTreeWithNodeItems(items, extent.nodeItem(0), nodeSize),
		extent: extent,
	}, nil
}

// Size returns the encoded size in bytes.
func (t *PackedTree) Size() int64 {
	return int64(t.tree.Size())
}

// Extent returns the union of the leaf boxes.
func (t *PackedTree) Extent() Box {
	return t.extent
}

// WriteTo writes all nodes, root first.
func (t *PackedTree) WriteTo(w io.Writer) (int64, error) {
	n, err := t.tree.Write(w)
	return int64(n), err
}

type treeNode struct {
	box    Box
	offset uint64
}

// readTreeNode decodes node i of an encoded packed tree.
func readTreeNode(data []byte, i int) treeNode {
	p := data[i*nodeItemSize:]
	return treeNode{
		box: Box{
			MinX: math.Float64frombits(binary.LittleEndian.Uint64(p[0:])),
			MinY: math.Float64frombits(binary.LittleEndian.Uint64(p[8:])),
			MaxX: math.Float64frombits(binary.LittleEndian.Uint64(p[16:])),
			MaxY: math.Float64frombits(binary.LittleEndian.Uint64(p[24:])),
		},
		offset: binary.LittleEndian.Uint64(p[32:]),
	}
}
