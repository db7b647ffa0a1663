// Copyright 2025 Calyptra Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"math"

	"github.com/calyptra/lodestone/core"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for everything the backends persist. Vector payloads are
// representation-dependent, so the VectorRecord serializer is constructed
// per collection; the rest are package-level values.

var stringMapSer = ord.NewMapSer[string, string](ord.String, ord.String)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	v := uint64(id)
	buf := make([]byte, varint.Uint64.Size(v))
	varint.Uint64.Marshal(v, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrCorruptRecord, err)
	}
	return core.ID(v), nil
}

// MarshalManifest serializes a CollectionManifest to bytes.
func MarshalManifest(m *CollectionManifest) []byte {
	buf := make([]byte, manifestSer.Size(*m))
	manifestSer.Marshal(*m, buf)
	return buf
}

// UnmarshalManifest deserializes a CollectionManifest from bytes.
func UnmarshalManifest(data []byte) (*CollectionManifest, error) {
	m, _, err := manifestSer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrCorruptRecord, err)
	}
	return &m, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, chunkSer.Size(*chunk))
	chunkSer.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := chunkSer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrCorruptRecord, err)
	}
	return &chunk, nil
}

// MarshalVectorRecord serializes a VectorRecord with the collection's
// numeric representation.
func MarshalVectorRecord(record *core.VectorRecord, rep Representation) []byte {
	ser := vectorRecordSer{vec: vectorSer{rep: rep}}
	buf := make([]byte, ser.Size(*record))
	ser.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord written with the given
// representation.
func UnmarshalVectorRecord(data []byte, rep Representation) (*core.VectorRecord, error) {
	ser := vectorRecordSer{vec: vectorSer{rep: rep}}
	record, _, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector record: %w", ErrCorruptRecord, err)
	}
	return &record, nil
}

// vectorSer encodes a []float32 as a length-prefixed component list, each
// component 4 bytes for RepFloat32 or a 2-byte half float for RepFloat16.
type vectorSer struct {
	rep Representation
}

func (s vectorSer) Marshal(v []float32, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	if s.rep == RepFloat16 {
		for _, f := range v {
			n += raw.Uint16.Marshal(floatToHalf(f), bs[n:])
		}
		return n
	}
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (s vectorSer) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	width := 4
	if s.rep == RepFloat16 {
		width = 2
	}
	if len(bs)-n < length*width {
		return nil, n, ErrTruncatedData
	}
	v = make([]float32, 0, length)
	for i := 0; i < length; i++ {
		var n1 int
		if s.rep == RepFloat16 {
			var h uint16
			h, n1, err = raw.Uint16.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, n, err
			}
			v = append(v, halfToFloat(h))
			continue
		}
		var f float32
		f, n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v = append(v, f)
	}
	return v, n, nil
}

func (s vectorSer) Size(v []float32) (size int) {
	size = varint.PositiveInt.Size(len(v))
	if s.rep == RepFloat16 {
		return size + 2*len(v)
	}
	return size + 4*len(v)
}

func (s vectorSer) Skip(bs []byte) (n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return n, err
	}
	width := 4
	if s.rep == RepFloat16 {
		width = 2
	}
	n += length * width
	if n > len(bs) {
		return n, ErrTruncatedData
	}
	return n, nil
}

// vectorRecordSer serializes core.VectorRecord with a representation-bound
// vector payload.
type vectorRecordSer struct {
	vec vectorSer
}

func (s vectorRecordSer) Marshal(r core.VectorRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(r.Id), bs)
	n += s.vec.Marshal(r.Embedding, bs[n:])
	n += ord.String.Marshal(r.Text, bs[n:])
	n += stringMapSer.Marshal(r.Metadata, bs[n:])
	n += ord.String.Marshal(r.Source, bs[n:])
	n += raw.TimeUnixMicro.Marshal(r.UpdatedAt, bs[n:])
	return n
}

func (s vectorRecordSer) Unmarshal(bs []byte) (r core.VectorRecord, n int, err error) {
	var n1 int
	var id uint64
	id, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	r.Id = core.ID(id)
	r.Embedding, n1, err = s.vec.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Metadata, n1, err = stringMapSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.UpdatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:])
	n += n1
	return r, n, err
}

func (s vectorRecordSer) Size(r core.VectorRecord) (size int) {
	size = varint.Uint64.Size(uint64(r.Id))
	size += s.vec.Size(r.Embedding)
	size += ord.String.Size(r.Text)
	size += stringMapSer.Size(r.Metadata)
	size += ord.String.Size(r.Source)
	size += raw.TimeUnixMicro.Size(r.UpdatedAt)
	return size
}

func (s vectorRecordSer) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = varint.Uint64.Skip(bs)
	if err != nil {
		return n, err
	}
	n1, err = s.vec.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = stringMapSer.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = raw.TimeUnixMicro.Skip(bs[n:])
	n += n1
	return n, err
}

// chunkMetaSerT serializes core.ChunkMeta.
type chunkMetaSerT struct{}

var chunkMetaSer = chunkMetaSerT{}

func (chunkMetaSerT) Marshal(m core.ChunkMeta, bs []byte) (n int) {
	n = ord.String.Marshal(m.Source, bs)
	n += ord.String.Marshal(m.URL, bs[n:])
	n += ord.String.Marshal(m.Title, bs[n:])
	n += ord.String.Marshal(m.DocID, bs[n:])
	n += varint.Int.Marshal(m.ChunkIndex, bs[n:])
	return n
}

func (chunkMetaSerT) Unmarshal(bs []byte) (m core.ChunkMeta, n int, err error) {
	var n1 int
	m.Source, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return m, n, err
	}
	m.URL, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.DocID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return m, n, err
}

func (chunkMetaSerT) Size(m core.ChunkMeta) (size int) {
	size = ord.String.Size(m.Source)
	size += ord.String.Size(m.URL)
	size += ord.String.Size(m.Title)
	size += ord.String.Size(m.DocID)
	size += varint.Int.Size(m.ChunkIndex)
	return size
}

func (chunkMetaSerT) Skip(bs []byte) (n int, err error) {
	var n1 int
	for i := 0; i < 4; i++ {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return n, err
		}
	}
	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	return n, err
}

// chunkSerT serializes core.Chunk.
type chunkSerT struct{}

var chunkSer = chunkSerT{}

func (chunkSerT) Marshal(c core.Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(c.Id), bs)
	n += ord.String.Marshal(c.Text, bs[n:])
	n += chunkMetaSer.Marshal(c.Metadata, bs[n:])
	return n
}

func (chunkSerT) Unmarshal(bs []byte) (c core.Chunk, n int, err error) {
	var n1 int
	var id uint64
	id, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return c, n, err
	}
	c.Id = core.ID(id)
	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return c, n, err
	}
	c.Metadata, n1, err = chunkMetaSer.Unmarshal(bs[n:])
	n += n1
	return c, n, err
}

func (chunkSerT) Size(c core.Chunk) (size int) {
	size = varint.Uint64.Size(uint64(c.Id))
	size += ord.String.Size(c.Text)
	size += chunkMetaSer.Size(c.Metadata)
	return size
}

func (chunkSerT) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = varint.Uint64.Skip(bs)
	if err != nil {
		return n, err
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = chunkMetaSer.Skip(bs[n:])
	n += n1
	return n, err
}

// manifestSerT serializes CollectionManifest.
type manifestSerT struct{}

var manifestSer = manifestSerT{}

func (manifestSerT) Marshal(m CollectionManifest, bs []byte) (n int) {
	n = ord.String.Marshal(m.Name, bs)
	n += ord.String.Marshal(m.Model, bs[n:])
	n += varint.PositiveInt.Marshal(m.Dimension, bs[n:])
	n += ord.String.Marshal(string(m.Representation), bs[n:])
	n += raw.TimeUnixMicro.Marshal(m.CreatedAt, bs[n:])
	return n
}

func (manifestSerT) Unmarshal(bs []byte) (m CollectionManifest, n int, err error) {
	var n1 int
	m.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return m, n, err
	}
	m.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Dimension, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	var rep string
	rep, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Representation = Representation(rep)
	m.CreatedAt, n1, err = raw.TimeUnixMicro.Unmarshal(bs[n:])
	n += n1
	return m, n, err
}

func (manifestSerT) Size(m CollectionManifest) (size int) {
	size = ord.String.Size(m.Name)
	size += ord.String.Size(m.Model)
	size += varint.PositiveInt.Size(m.Dimension)
	size += ord.String.Size(string(m.Representation))
	size += raw.TimeUnixMicro.Size(m.CreatedAt)
	return size
}

func (manifestSerT) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = ord.String.Skip(bs)
	if err != nil {
		return n, err
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = varint.PositiveInt.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return n, err
	}
	n1, err = raw.TimeUnixMicro.Skip(bs[n:])
	n += n1
	return n, err
}

// floatToHalf converts a float32 to IEEE 754 half precision with
// round-to-nearest-even. Out-of-range values saturate to infinity.
func floatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// Overflow or Inf/NaN.
		if bits&0x7fffffff > 0x7f800000 {
			return sign | 0x7e00 // NaN
		}
		return sign | 0x7c00 // Inf
	case exp <= 0:
		// Subnormal half, or underflow to zero.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		// Round to nearest even.
		if mant>>(shift-1)&1 == 1 && (mant&(1<<(shift-1)-1) != 0 || half&1 == 1) {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		// Round to nearest even.
		if mant&0x1000 != 0 && (mant&0xfff != 0 || half&1 == 1) {
			half++
		}
		return half
	}
}

// halfToFloat converts an IEEE 754 half precision value to float32.
func halfToFloat(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h >> 10 & 0x1f)
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal half: normalize.
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | (exp+1-15+127)<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | mant<<13)
	}
}
