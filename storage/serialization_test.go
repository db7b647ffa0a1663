package storage

import (
	"math"
	"testing"
	"time"

	"github.com/calyptra/lodestone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Empty(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestMarshalUnmarshalVectorRecord_Float32(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.VectorRecord{
		Id:        core.ID(7),
		Embedding: []float32{0.1, -0.5, 0.25, 1.0},
		Text:      "a chunk of text",
		Metadata:  map[string]string{"url": "https://example.com", "title": "Example"},
		Source:    "docs",
		UpdatedAt: now,
	}

	data := MarshalVectorRecord(record, RepFloat32)
	decoded, err := UnmarshalVectorRecord(data, RepFloat32)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestMarshalUnmarshalVectorRecord_Float16(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.VectorRecord{
		Id:        core.ID(9),
		Embedding: []float32{0.123, -0.456, 0.789, -0.999, 0.001},
		Text:      "wide collection record",
		Source:    "docs",
		UpdatedAt: now,
	}

	data := MarshalVectorRecord(record, RepFloat16)
	decoded, err := UnmarshalVectorRecord(data, RepFloat16)
	require.NoError(t, err)

	assert.Equal(t, record.Id, decoded.Id)
	assert.Equal(t, record.Text, decoded.Text)
	assert.Equal(t, record.Source, decoded.Source)
	require.Len(t, decoded.Embedding, len(record.Embedding))

	// Half precision keeps about 3 decimal digits for unit-range values.
	for i := range record.Embedding {
		assert.InDelta(t, record.Embedding[i], decoded.Embedding[i], 0.001)
	}
}

func TestFloat16HalvesPayload(t *testing.T) {
	record := &core.VectorRecord{
		Id:        core.ID(1),
		Embedding: make([]float32, 1536),
		UpdatedAt: time.Now(),
	}

	wide := MarshalVectorRecord(record, RepFloat32)
	narrow := MarshalVectorRecord(record, RepFloat16)
	assert.Equal(t, len(wide)-len(narrow), 2*1536)
}

func TestUnmarshalVectorRecord_Truncated(t *testing.T) {
	record := &core.VectorRecord{
		Id:        core.ID(3),
		Embedding: []float32{0.1, 0.2, 0.3},
		UpdatedAt: time.Now(),
	}
	data := MarshalVectorRecord(record, RepFloat32)

	_, err := UnmarshalVectorRecord(data[:len(data)/2], RepFloat32)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	chunk := &core.Chunk{
		Id:   core.ChunkID("doc-1", 2, "chunk text"),
		Text: "chunk text",
		Metadata: core.ChunkMeta{
			Source:     "docs",
			URL:        "https://example.com/page",
			Title:      "Page",
			DocID:      "doc-1",
			ChunkIndex: 2,
		},
	}

	data := MarshalChunk(chunk)
	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk, decoded)
}

func TestMarshalUnmarshalManifest(t *testing.T) {
	m := &CollectionManifest{
		Name:           "docs_nomic",
		Model:          "nomic-embed-text",
		Dimension:      768,
		Representation: RepFloat32,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}

	data := MarshalManifest(m)
	decoded, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestRepresentationFor(t *testing.T) {
	assert.Equal(t, RepFloat32, RepresentationFor(384))
	assert.Equal(t, RepFloat32, RepresentationFor(1024))
	assert.Equal(t, RepFloat16, RepresentationFor(1025))
	assert.Equal(t, RepFloat16, RepresentationFor(3072))
}

func TestHalfConversion(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, -0.5, 0.0001, -0.0001, 0.999, 65504}
	for _, v := range values {
		got := halfToFloat(floatToHalf(v))
		assert.InDelta(t, v, got, math.Max(float64(v)*0.001, 0.0001), "value %v", v)
	}

	// Exact values survive the round trip.
	assert.Equal(t, float32(0.5), halfToFloat(floatToHalf(0.5)))
	assert.Equal(t, float32(-2), halfToFloat(floatToHalf(-2)))

	// Out of half range saturates to infinity.
	assert.True(t, math.IsInf(float64(halfToFloat(floatToHalf(100000))), 1))
}
