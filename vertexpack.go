// Package vertexpack implements a lossless byte-oriented compression codec
// for columnar vertex attribute data.
//
// The codec operates on buffers of fixed-stride records ("vertices"). Each
// byte offset within the stride is treated as an independent byte column:
// consecutive values are delta-encoded against the previous vertex, zigzag
// mapped so small deltas of either sign become small bytes, and then packed
// in 16-byte groups at the narrowest viable bit width with a sentinel escape
// path for outliers. Callers provide the destination slice to Encode/Decode
// so higher layers can reuse buffers without repeated heap allocations. The
// package maintains no global mutable state.
package vertexpack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Stream layout constants.
//
// An encoded stream is structured as follows:
//
//	Byte 0:      0xA0 | version
//	Bytes 1..:   encoded blocks, each block = vertexSize columns of
//	             (width-code header + packed groups), in byte-offset order
//	Tail:        max(0, 32-vertexSize) zero bytes followed by the raw
//	             first vertex (vertexSize bytes)
//
// Each column header holds one 2-bit width code per 16-byte group, four
// codes per byte, least significant pair first. Code 0 means the group is
// all zeros (no payload), codes 1 and 2 mean 2- and 4-bit packed fields
// with escape bytes appended after the fixed section, and code 3 means 16
// raw bytes.
const (
	// FormatVersion is the stream format version written by Encode and
	// required by Decode.
	FormatVersion = 1

	// MaxVertexSize is the largest supported vertex stride in bytes.
	MaxVertexSize = 256

	// headerTag occupies the top nibble of the stream's first byte.
	headerTag = 0xa0

	// blockSizeBytes bounds the raw size of one vertex block so per-block
	// scratch buffers stay constant-size.
	blockSizeBytes = 8192
	// blockMaxSize is the maximum number of vertices per block.
	blockMaxSize = 256

	// byteGroupSize is the number of delta bytes packed as one unit.
	byteGroupSize = 16
	// byteGroupDecodeLimit is the worst-case encoded size of one group:
	// 8 fixed bytes at width 4 plus 16 escape bytes. Encoders reserve this
	// much headroom before attempting a group so decoders can read a group
	// without per-byte bounds checks.
	byteGroupDecodeLimit = 24

	// tailMaxSize is the minimum stream tail length. The tail is at least
	// as large as byteGroupDecodeLimit, which keeps fixed-size group reads
	// near the logical end of the stream in bounds during decoding.
	tailMaxSize = 32
)

// ErrShortBuffer is returned when the destination slice is too small to hold
// the encoded or decoded output.
var ErrShortBuffer = errors.New("vertexpack: short destination buffer")

var bo = binary.LittleEndian

// zigzag8 maps a signed 8-bit delta to an unsigned byte such that small
// deltas of either sign map to small values: 0, -1, 1, -2, 2, ...
func zigzag8(v byte) byte {
	return byte(int8(v)>>7) ^ (v << 1)
}

// unzigzag8 is the inverse of zigzag8.
func unzigzag8(v byte) byte {
	return -(v & 1) ^ (v >> 1)
}

// widthWriter packs 2-bit group width codes into a header region, four codes
// per byte, least significant pair first. The destination must be zeroed;
// codes are ORed in at increasing positions.
type widthWriter struct {
	dst []byte
	pos int
}

func newWidthWriter(dst []byte) *widthWriter {
	clear(dst)
	return &widthWriter{dst: dst}
}

// Put appends one width code (0..3).
func (w *widthWriter) Put(code byte) {
	w.dst[w.pos>>2] |= code << ((w.pos & 3) * 2)
	w.pos++
}

// widthCodeSize returns the number of header bytes needed for a delta buffer
// of the given length (one 2-bit code per group, rounded up to whole bytes).
func widthCodeSize(bufferSize int) int {
	return (bufferSize/byteGroupSize + 3) / 4
}

// groupIsZero reports whether all bytes of the group are zero.
func groupIsZero(group []byte) bool {
	for _, v := range group[:byteGroupSize] {
		if v != 0 {
			return false
		}
	}
	return true
}

// encodeGroupTry packs one 16-byte group into dst at the given bit width
// (1, 2, 4 or 8) and returns the number of bytes written.
//
// Width 1 degenerates to an all-or-nothing zero check: it succeeds with no
// payload only when every byte is zero, and never packs nonzero values.
// Width 8 copies the group verbatim. Widths 2 and 4 store 8/bits values per
// output byte, most significant value first; a value that does not fit is
// replaced by the all-ones sentinel and its true byte is appended, in order
// of occurrence, after the fixed-width section.
//
// Returns ok=false when dst lacks space, or at width 1 when the group has
// nonzero bytes.
func encodeGroupTry(dst []byte, group []byte, bits int) (int, bool) {
	if bits == 1 {
		return 0, groupIsZero(group)
	}

	if bits == 8 {
		if len(dst) < byteGroupSize {
			return 0, false
		}
		copy(dst, group[:byteGroupSize])
		return byteGroupSize, true
	}

	valuesPerByte := 8 / bits
	sentinel := byte(1<<bits - 1)

	n := 0
	for i := 0; i < byteGroupSize; i += valuesPerByte {
		var packed byte
		for k := 0; k < valuesPerByte; k++ {
			enc := group[i+k]
			if enc >= sentinel {
				enc = sentinel
			}
			packed = packed<<bits | enc
		}
		if n >= len(dst) {
			return 0, false
		}
		dst[n] = packed
		n++
	}

	for _, v := range group[:byteGroupSize] {
		if v >= sentinel {
			if n >= len(dst) {
				return 0, false
			}
			dst[n] = v
			n++
		}
	}

	return n, true
}

// packColumn compresses one delta buffer (length a multiple of byteGroupSize)
// into dst: a zero-initialized width-code header followed by the packed
// groups. Every candidate width is tried for each group and the smallest
// output wins; ties keep the width tried first (8, then 1, 2, 4). offset is
// the byte offset within the stride, reported to the observer.
//
// packColumn has no cross-call state: the same buffer and available space
// always produce the same output.
func packColumn(dst []byte, buffer []byte, offset int, obs Observer) (int, error) {
	headerSize := widthCodeSize(len(buffer))
	if len(dst) < headerSize {
		return 0, fmt.Errorf("%w: column header needs %d bytes, have %d", ErrShortBuffer, headerSize, len(dst))
	}

	header := newWidthWriter(dst[:headerSize])
	pos := headerSize

	for i := 0; i < len(buffer); i += byteGroupSize {
		if len(dst)-pos < byteGroupDecodeLimit {
			return 0, fmt.Errorf("%w: group needs %d bytes of headroom, have %d", ErrShortBuffer, byteGroupDecodeLimit, len(dst)-pos)
		}

		group := buffer[i : i+byteGroupSize]

		bestBits := 8
		bestSize, _ := encodeGroupTry(dst[pos:], group, 8)

		for bits := 1; bits < 8; bits *= 2 {
			if n, ok := encodeGroupTry(dst[pos:], group, bits); ok && n < bestSize {
				bestBits = bits
				bestSize = n
			}
		}

		// bits 1,2,4,8 -> codes 0,1,2,3
		var code byte
		for bits := bestBits; bits > 1; bits >>= 1 {
			code++
		}
		header.Put(code)

		n, ok := encodeGroupTry(dst[pos:], group, bestBits)
		if !ok || n != bestSize {
			return 0, fmt.Errorf("%w: group packing overflowed remaining capacity %d", ErrShortBuffer, len(dst)-pos)
		}
		pos += n

		obs.GroupEncoded(offset, int(code), n)
	}

	obs.ColumnEncoded(offset, headerSize, pos)

	return pos, nil
}

// encodeVertexBlock encodes one block of 1..blockMaxSize vertices. For each
// byte offset within the stride it builds a delta buffer seeded from
// lastVertex, zero-padded up to a multiple of byteGroupSize, and packs it
// with packColumn; column outputs are concatenated in offset order. On
// success lastVertex is updated to the raw bytes of the block's final vertex
// so the next block's deltas chain correctly.
func encodeVertexBlock(dst []byte, vertexData []byte, vertexCount, vertexSize int, lastVertex *[MaxVertexSize]byte, obs Observer) (int, error) {
	// Padding bytes beyond vertexCount stay zero across all columns.
	var buffer [blockMaxSize]byte

	bufferSize := (vertexCount + byteGroupSize - 1) &^ (byteGroupSize - 1)

	pos := 0
	for k := 0; k < vertexSize; k++ {
		p := lastVertex[k]
		vertexOffset := k
		for i := 0; i < vertexCount; i++ {
			v := vertexData[vertexOffset]
			buffer[i] = zigzag8(v - p)
			p = v
			vertexOffset += vertexSize
		}

		n, err := packColumn(dst[pos:], buffer[:bufferSize], k, obs)
		if err != nil {
			return 0, err
		}
		pos += n
	}

	copy(lastVertex[:vertexSize], vertexData[(vertexCount-1)*vertexSize:])

	return pos, nil
}

// vertexBlockSize returns the number of vertices per block for the given
// stride: the block must fit the scratch budget and is truncated to a
// multiple of byteGroupSize so groups never span blocks.
func vertexBlockSize(vertexSize int) int {
	result := blockSizeBytes / vertexSize
	result &^= byteGroupSize - 1
	if result > blockMaxSize {
		return blockMaxSize
	}
	return result
}

// validateVertexSize panics if the stride is outside the supported domain.
// Invalid strides are caller contract violations, not runtime conditions.
func validateVertexSize(vertexSize int) {
	if vertexSize <= 0 || vertexSize > MaxVertexSize {
		panic(fmt.Sprintf("vertexpack: invalid vertex size %d (must be in 1..%d)", vertexSize, MaxVertexSize))
	}
	if vertexSize%4 != 0 {
		panic(fmt.Sprintf("vertexpack: invalid vertex size %d (must be a multiple of 4)", vertexSize))
	}
}

// validateVertexBuffer panics if the buffer length is not a whole number of
// vertices, and returns the vertex count.
func validateVertexBuffer(vertices []byte, vertexSize int) int {
	if len(vertices)%vertexSize != 0 {
		panic(fmt.Sprintf("vertexpack: buffer length %d is not a multiple of vertex size %d", len(vertices), vertexSize))
	}
	return len(vertices) / vertexSize
}

// Encode compresses a vertex buffer into dst and returns the number of bytes
// written. vertexSize must be a multiple of 4, at most MaxVertexSize, and
// len(vertices) must be a multiple of it; violations panic. A destination of
// EncodeBound(len(vertices)/vertexSize, vertexSize) bytes never fails; a
// smaller one may return ErrShortBuffer, in which case the contents of dst
// are unspecified and must be discarded.
//
// Encoding is deterministic and read-only over vertices, so concurrent
// encodes are safe as long as each call has its own dst.
func Encode(dst, vertices []byte, vertexSize int) (int, error) {
	return EncodeWithObserver(dst, vertices, vertexSize, nil)
}

// EncodeWithObserver is Encode with per-group and per-column measurements
// reported to obs. A nil obs is equivalent to Encode.
func EncodeWithObserver(dst, vertices []byte, vertexSize int, obs Observer) (int, error) {
	validateVertexSize(vertexSize)
	vertexCount := validateVertexBuffer(vertices, vertexSize)
	if obs == nil {
		obs = noopObserver{}
	}

	if len(dst) < 1+vertexSize {
		return 0, fmt.Errorf("%w: stream header needs %d bytes, have %d", ErrShortBuffer, 1+vertexSize, len(dst))
	}

	pos := 0
	dst[pos] = headerTag | FormatVersion
	pos++

	// The first vertex is the initial delta baseline and is written verbatim
	// into the stream tail; it never appears in packed form.
	var firstVertex, lastVertex [MaxVertexSize]byte
	if vertexCount > 0 {
		copy(firstVertex[:vertexSize], vertices)
	}
	lastVertex = firstVertex

	blockSize := vertexBlockSize(vertexSize)

	for vertexOffset := 0; vertexOffset < vertexCount; vertexOffset += blockSize {
		count := min(blockSize, vertexCount-vertexOffset)

		n, err := encodeVertexBlock(dst[pos:], vertices[vertexOffset*vertexSize:], count, vertexSize, &lastVertex, obs)
		if err != nil {
			return 0, err
		}
		pos += n
	}

	tailSize := max(vertexSize, tailMaxSize)
	if len(dst)-pos < tailSize {
		return 0, fmt.Errorf("%w: stream tail needs %d bytes, have %d", ErrShortBuffer, tailSize, len(dst)-pos)
	}

	if vertexSize < tailMaxSize {
		clear(dst[pos : pos+tailMaxSize-vertexSize])
		pos += tailMaxSize - vertexSize
	}

	copy(dst[pos:], firstVertex[:vertexSize])
	pos += vertexSize

	return pos, nil
}

// EncodeBound returns a conservative worst-case output size for encoding
// vertexCount vertices of the given stride. Encode given a destination of
// this size never returns ErrShortBuffer.
func EncodeBound(vertexCount, vertexSize int) int {
	validateVertexSize(vertexSize)

	blockSize := vertexBlockSize(vertexSize)
	blockCount := (vertexCount + blockSize - 1) / blockSize

	// Width 8 is always viable at one byte per value, so a packed column
	// never exceeds its header plus the raw column bytes.
	blockHeaderSize := widthCodeSize(blockSize)

	tailSize := max(vertexSize, tailMaxSize)

	return 1 + blockCount*vertexSize*(blockHeaderSize+blockSize) + tailSize
}
