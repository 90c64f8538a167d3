package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// On-disk layout: 4-byte magic, uint32 dimension, uint32 count, then
// count*dimension little-endian float32s.
var indexMagic = [4]byte{'F', 'X', 'I', '1'}

const headerSize = 4 + 4 + 4

// ErrCorruptIndex signals an index blob that does not match the codec layout.
var ErrCorruptIndex = errors.New("corrupt index data")

// Marshal serializes the index.
func (x *FlatIndex) Marshal() []byte {
	buf := make([]byte, headerSize+len(x.vectors)*x.dim*4)
	copy(buf[0:4], indexMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(x.dim))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(x.vectors)))

	off := headerSize
	for _, v := range x.vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

// Unmarshal deserializes an index blob produced by Marshal.
func Unmarshal(data []byte) (*FlatIndex, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is below header size", ErrCorruptIndex, len(data))
	}
	if [4]byte(data[0:4]) != indexMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim <= 0 || count <= 0 {
		return nil, fmt.Errorf("%w: dim=%d count=%d", ErrCorruptIndex, dim, count)
	}
	want := headerSize + count*dim*4
	if len(data) != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrCorruptIndex, len(data), want)
	}

	vectors := make([][]float32, count)
	off := headerSize
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}
	return &FlatIndex{dim: dim, vectors: vectors}, nil
}
