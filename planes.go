package vertexpack

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/mhr3/streamvbyte"
)

// Experimental bit-plane codec.
//
// EncodePlanes/DecodePlanes implement an alternate encoding explored for
// comparison against the byte-group codec. Instead of byte columns, it works
// on the 32-bit words of the stride: values are rotated left by one bit (so
// the sign bit of float-like data lands next to the exponent), delta-encoded
// against the previous vertex, and the resulting 32 deltas of a chunk are
// transposed into 32 bit planes. Planes that are entirely zero cost nothing
// beyond one bit in a presence mask; the remaining plane words are
// serialized with StreamVByte behind a uint16 length prefix.
//
// The format is independent of the Encode stream format and carries no
// version header; callers must know the vertex count and stride.

const (
	// planeChunkSize is the number of vertices transposed as one chunk.
	planeChunkSize = 32
	// planeWordSize is the attribute word size the plane codec operates on.
	planeWordSize = 4
)

// EncodePlanes appends the bit-plane encoding of a vertex buffer to dst and
// returns the extended slice. vertexSize follows the Encode contract and
// violations panic.
func EncodePlanes(dst []byte, vertices []byte, vertexSize int) []byte {
	validateVertexSize(vertexSize)
	vertexCount := validateVertexBuffer(vertices, vertexSize)

	var planes [planeChunkSize]uint32

	for k := 0; k < vertexSize; k += planeWordSize {
		var last uint32

		for i := 0; i < vertexCount; i += planeChunkSize {
			// Deltas beyond the vertex count stay zero; the decoder only
			// reconstructs vertices that exist.
			var deltas [planeChunkSize]uint32

			for j := 0; j < planeChunkSize && i+j < vertexCount; j++ {
				value := bo.Uint32(vertices[(i+j)*vertexSize+k:])
				value = bits.RotateLeft32(value, 1)

				delta := value - last
				if delta>>31 != 0 {
					delta ^= 0x7fffffff
				}
				deltas[j] = delta

				last = value
			}

			var mask uint32
			planeCount := 0
			for row := 0; row < planeChunkSize; row++ {
				var plane uint32
				for col := 0; col < planeChunkSize; col++ {
					plane |= deltas[col] >> row & 1 << col
				}
				if plane != 0 {
					mask |= 1 << row
					planes[planeCount] = plane
					planeCount++
				}
			}

			dst = appendPlaneChunk(dst, mask, planes[:planeCount])
		}
	}

	return dst
}

// appendPlaneChunk serializes one chunk: a 32-bit presence mask, a uint16
// StreamVByte length, and the StreamVByte-encoded nonzero plane words.
func appendPlaneChunk(dst []byte, mask uint32, planes []uint32) []byte {
	maxTotal := 4 + 2 + streamvbyte.MaxEncodedLen(len(planes))

	start := len(dst)
	dst = slices.Grow(dst, maxTotal)
	dst = dst[:start+maxTotal]

	bo.PutUint32(dst[start:], mask)

	svbLen := 0
	if len(planes) > 0 {
		svbData := streamvbyte.EncodeUint32(planes, &streamvbyte.EncodeOptions[uint32]{
			Buffer: dst[start+6:],
		})
		svbLen = len(svbData)
	}
	bo.PutUint16(dst[start+4:], uint16(svbLen))

	return dst[:start+6+svbLen]
}

// DecodePlanes reverses EncodePlanes, writing vertexCount vertices of the
// given stride into dst (which is grown as needed and returned). Returns
// ErrInvalidBuffer if the stream is truncated, malformed, or does not match
// the supplied dimensions.
func DecodePlanes(dst []byte, buf []byte, vertexCount, vertexSize int) ([]byte, error) {
	validateVertexSize(vertexSize)
	if vertexCount < 0 {
		panic(fmt.Sprintf("vertexpack: invalid vertex count %d", vertexCount))
	}

	need := vertexCount * vertexSize
	if dst == nil || cap(dst) < need {
		dst = make([]byte, need)
	} else {
		dst = dst[:need]
	}

	var scratch [planeChunkSize]uint32

	pos := 0
	for k := 0; k < vertexSize; k += planeWordSize {
		var last uint32

		for i := 0; i < vertexCount; i += planeChunkSize {
			if len(buf)-pos < 6 {
				return nil, fmt.Errorf("%w: truncated plane chunk header at offset %d", ErrInvalidBuffer, pos)
			}
			mask := bo.Uint32(buf[pos:])
			svbLen := int(bo.Uint16(buf[pos+4:]))
			pos += 6

			if len(buf)-pos < svbLen {
				return nil, fmt.Errorf("%w: truncated plane words (need %d bytes, got %d)", ErrInvalidBuffer, svbLen, len(buf)-pos)
			}

			planeCount := bits.OnesCount32(mask)
			var planes []uint32
			if planeCount > 0 {
				planes = streamvbyte.DecodeUint32(buf[pos:pos+svbLen], planeCount, &streamvbyte.DecodeOptions[uint32]{
					Buffer: scratch[:planeCount],
				})
				if len(planes) != planeCount {
					return nil, fmt.Errorf("%w: plane words decode to %d values, want %d", ErrInvalidBuffer, len(planes), planeCount)
				}
			}
			pos += svbLen

			var deltas [planeChunkSize]uint32
			planeIndex := 0
			for row := 0; row < planeChunkSize; row++ {
				if mask>>row&1 == 0 {
					continue
				}
				plane := planes[planeIndex]
				planeIndex++
				for col := 0; col < planeChunkSize; col++ {
					deltas[col] |= plane >> col & 1 << row
				}
			}

			for j := 0; j < planeChunkSize && i+j < vertexCount; j++ {
				delta := deltas[j]
				// The sign-flip is an involution: bit 31 is untouched, so
				// applying it again restores the raw delta.
				if delta>>31 != 0 {
					delta ^= 0x7fffffff
				}

				value := last + delta
				last = value

				bo.PutUint32(dst[(i+j)*vertexSize+k:], bits.RotateLeft32(value, -1))
			}
		}
	}

	if pos != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes after plane data", ErrInvalidBuffer, len(buf)-pos)
	}

	return dst, nil
}
