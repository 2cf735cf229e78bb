package flatgeobuf

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
)

// headerSpec is everything the header of one exported table carries.
type headerSpec struct {
	name          string
	description   string
	geometryType  flattypes.GeometryType
	srid          int
	envelope      *Box
	featuresCount uint64
	indexNodeSize uint16
	columns       []ColumnSpec
}

// buildHeader returns the size-prefixed Header flatbuffer.
func buildHeader(h headerSpec) []byte {
	b := flatbuffers.NewBuilder(1024)

	columns := make([]flatbuffers.UOffsetT, len(h.columns))
	for i, c := range h.columns {
		name := b.CreateString(c.Name)
		flattypes.ColumnStart(b)
		flattypes.ColumnAddName(b, name)
		flattypes.ColumnAddType(b, c.Type)
		flattypes.ColumnAddTitle(b, name)
		flattypes.ColumnAddNullable(b, c.Nullable)
		flattypes.ColumnAddWidth(b, int32(c.Width))
		flattypes.ColumnAddPrecision(b, int32(c.Precision))
		flattypes.ColumnAddScale(b, int32(c.Scale))
		columns[i] = flattypes.ColumnEnd(b)
	}
	var columnsOff flatbuffers.UOffsetT
	if len(columns) > 0 {
		flattypes.HeaderStartColumnsVector(b, len(columns))
		for i := len(columns) - 1; i >= 0; i-- {
			b.PrependUOffsetT(columns[i])
		}
		columnsOff = b.EndVector(len(columns))
	}

	var envelopeOff flatbuffers.UOffsetT
	if h.envelope != nil {
		env := h.envelope.Array()
		flattypes.HeaderStartEnvelopeVector(b, len(env))
		for i := len(env) - 1; i >= 0; i-- {
			b.PrependFloat64(env[i])
		}
		envelopeOff = b.EndVector(len(env))
	}

	var crsOff flatbuffers.UOffsetT
	if h.srid > 0 {
		org := b.CreateString("EPSG")
		flattypes.CrsStart(b)
		flattypes.CrsAddOrg(b, org)
		flattypes.CrsAddCode(b, int32(h.srid))
		crsOff = flattypes.CrsEnd(b)
	}

	nameOff := b.CreateString(h.name)
	var descOff flatbuffers.UOffsetT
	if h.description != "" {
		descOff = b.CreateString(h.description)
	}

	flattypes.HeaderStart(b)
	flattypes.HeaderAddName(b, nameOff)
	if envelopeOff != 0 {
		flattypes.HeaderAddEnvelope(b, envelopeOff)
	}
	flattypes.HeaderAddGeometryType(b, h.geometryType)
	if columnsOff != 0 {
		flattypes.HeaderAddColumns(b, columnsOff)
	}
	flattypes.HeaderAddFeaturesCount(b, h.featuresCount)
	flattypes.HeaderAddIndexNodeSize(b, h.indexNodeSize)
	if crsOff != 0 {
		flattypes.HeaderAddCrs(b, crsOff)
	}
	if descOff != 0 {
		flattypes.HeaderAddDescription(b, descOff)
	}
	b.FinishSizePrefixed(flattypes.HeaderEnd(b))

	return b.FinishedBytes()
}
