package vertexpack

import (
	"errors"
	"fmt"
)

// ErrInvalidBuffer is returned when an encoded stream is truncated or
// malformed.
var ErrInvalidBuffer = errors.New("vertexpack: invalid buffer")

// decodeGroup unpacks one 16-byte group from data into group according to
// the 2-bit width code and returns the number of bytes consumed. Escape
// bytes for sentinel-marked values are consumed, in order of occurrence,
// from after the fixed-width section.
func decodeGroup(data []byte, group []byte, code byte) (int, error) {
	switch code {
	case 0:
		clear(group[:byteGroupSize])
		return 0, nil
	case 3:
		if len(data) < byteGroupSize {
			return 0, fmt.Errorf("%w: truncated raw group (need %d bytes, got %d)", ErrInvalidBuffer, byteGroupSize, len(data))
		}
		copy(group[:byteGroupSize], data)
		return byteGroupSize, nil
	}

	bits := 1 << code // code 1 -> 2 bits, code 2 -> 4 bits
	valuesPerByte := 8 / bits
	sentinel := byte(1<<bits - 1)
	fixedSize := byteGroupSize / valuesPerByte

	if len(data) < fixedSize {
		return 0, fmt.Errorf("%w: truncated packed group (need %d bytes, got %d)", ErrInvalidBuffer, fixedSize, len(data))
	}

	next := fixedSize
	for i := 0; i < byteGroupSize; i += valuesPerByte {
		packed := data[i/valuesPerByte]
		for k := 0; k < valuesPerByte; k++ {
			enc := packed >> (8 - bits*(k+1)) & sentinel
			if enc == sentinel {
				if next >= len(data) {
					return 0, fmt.Errorf("%w: truncated escape bytes in packed group", ErrInvalidBuffer)
				}
				group[i+k] = data[next]
				next++
			} else {
				group[i+k] = enc
			}
		}
	}

	return next, nil
}

// decodeBytes reverses packColumn, filling buffer (length a multiple of
// byteGroupSize) from the width-code header and packed groups in data.
// Before each group it requires byteGroupDecodeLimit bytes to remain; the
// stream tail is longer than that, so every valid stream passes and group
// reads never run past the buffer.
func decodeBytes(data []byte, buffer []byte) (int, error) {
	headerSize := widthCodeSize(len(buffer))
	if len(data) < headerSize {
		return 0, fmt.Errorf("%w: truncated column header (need %d bytes, got %d)", ErrInvalidBuffer, headerSize, len(data))
	}

	header := data[:headerSize]
	pos := headerSize

	for i := 0; i < len(buffer); i += byteGroupSize {
		if len(data)-pos < byteGroupDecodeLimit {
			return 0, fmt.Errorf("%w: truncated group data (need %d bytes, got %d)", ErrInvalidBuffer, byteGroupDecodeLimit, len(data)-pos)
		}

		groupIndex := i / byteGroupSize
		code := header[groupIndex>>2] >> ((groupIndex & 3) * 2) & 3

		n, err := decodeGroup(data[pos:], buffer[i:], code)
		if err != nil {
			return 0, err
		}
		pos += n
	}

	return pos, nil
}

// decodeVertexBlock reverses encodeVertexBlock: it unpacks one delta buffer
// per byte offset, applies the inverse zigzag transform and a running prefix
// over the lastVertex baseline, and scatters the raw bytes into rows of
// vertexData. lastVertex is advanced to the block's final vertex.
func decodeVertexBlock(data []byte, vertexData []byte, vertexCount, vertexSize int, lastVertex *[MaxVertexSize]byte) (int, error) {
	var buffer [blockMaxSize]byte

	bufferSize := (vertexCount + byteGroupSize - 1) &^ (byteGroupSize - 1)

	pos := 0
	for k := 0; k < vertexSize; k++ {
		n, err := decodeBytes(data[pos:], buffer[:bufferSize])
		if err != nil {
			return 0, err
		}
		pos += n

		p := lastVertex[k]
		vertexOffset := k
		for i := 0; i < vertexCount; i++ {
			v := unzigzag8(buffer[i]) + p
			vertexData[vertexOffset] = v
			p = v
			vertexOffset += vertexSize
		}
	}

	copy(lastVertex[:vertexSize], vertexData[(vertexCount-1)*vertexSize:])

	return pos, nil
}

// Decode reconstructs a vertex buffer from an Encode-produced stream,
// writing vertexCount vertices of the given stride into dst. It returns the
// number of bytes written to dst, which is always vertexCount*vertexSize on
// success. vertexSize follows the same contract as Encode and violations
// panic; a dst shorter than the decoded size returns ErrShortBuffer, and a
// truncated or malformed stream returns ErrInvalidBuffer.
//
// Decode(dst, buf, n, size) after Encode(buf, vertices, size) restores
// vertices bit for bit.
func Decode(dst, buf []byte, vertexCount, vertexSize int) (int, error) {
	validateVertexSize(vertexSize)
	if vertexCount < 0 {
		panic(fmt.Sprintf("vertexpack: invalid vertex count %d", vertexCount))
	}

	if len(dst) < vertexCount*vertexSize {
		return 0, fmt.Errorf("%w: decoded data needs %d bytes, have %d", ErrShortBuffer, vertexCount*vertexSize, len(dst))
	}

	tailSize := max(vertexSize, tailMaxSize)
	if len(buf) < 1+tailSize {
		return 0, fmt.Errorf("%w: stream shorter than header and tail (need %d bytes, got %d)", ErrInvalidBuffer, 1+tailSize, len(buf))
	}

	if buf[0] != headerTag|FormatVersion {
		return 0, fmt.Errorf("%w: unsupported stream header 0x%02x", ErrInvalidBuffer, buf[0])
	}

	// The raw first vertex lives at the very end of the stream and seeds
	// the delta chain.
	var lastVertex [MaxVertexSize]byte
	copy(lastVertex[:vertexSize], buf[len(buf)-vertexSize:])

	blockSize := vertexBlockSize(vertexSize)

	pos := 1
	for vertexOffset := 0; vertexOffset < vertexCount; vertexOffset += blockSize {
		count := min(blockSize, vertexCount-vertexOffset)

		n, err := decodeVertexBlock(buf[pos:], dst[vertexOffset*vertexSize:], count, vertexSize, &lastVertex)
		if err != nil {
			return 0, err
		}
		pos += n
	}

	if len(buf)-pos != tailSize {
		return 0, fmt.Errorf("%w: stream tail is %d bytes, want %d", ErrInvalidBuffer, len(buf)-pos, tailSize)
	}

	return vertexCount * vertexSize, nil
}
