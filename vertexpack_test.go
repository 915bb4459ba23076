package vertexpack

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZigzag8(t *testing.T) {
	assert := assert.New(t)

	// small deltas of either sign map to small bytes
	assert.Equal(byte(0), zigzag8(0))
	assert.Equal(byte(1), zigzag8(0xff)) // -1
	assert.Equal(byte(2), zigzag8(1))
	assert.Equal(byte(3), zigzag8(0xfe)) // -2
	assert.Equal(byte(255), zigzag8(0x80))

	for v := 0; v < 256; v++ {
		assert.Equal(byte(v), unzigzag8(zigzag8(byte(v))), "zigzag round trip failed for %d", v)
	}
}

func TestWidthWriter(t *testing.T) {
	assert := assert.New(t)

	dst := []byte{0xff, 0xff}
	w := newWidthWriter(dst)
	for _, code := range []byte{0, 1, 2, 3, 3} {
		w.Put(code)
	}

	assert.Equal(byte(0xe4), dst[0], "codes 0,1,2,3 should pack LSB-first")
	assert.Equal(byte(0x03), dst[1], "fifth code should land in the low bits of the next byte")
}

func TestEncodeGroupZeroWidth(t *testing.T) {
	assert := assert.New(t)

	var group [byteGroupSize]byte
	n, ok := encodeGroupTry(nil, group[:], 1)
	assert.True(ok, "all-zero group should pack at width 1")
	assert.Equal(0, n, "width 1 emits no payload")

	group[7] = 1
	_, ok = encodeGroupTry(make([]byte, byteGroupDecodeLimit), group[:], 1)
	assert.False(ok, "width 1 must never pack nonzero values")
}

func TestEncodeGroupRaw(t *testing.T) {
	assert := assert.New(t)

	group := make([]byte, byteGroupSize)
	for i := range group {
		group[i] = byte(200 + i)
	}

	dst := make([]byte, byteGroupDecodeLimit)
	n, ok := encodeGroupTry(dst, group, 8)
	assert.True(ok)
	assert.Equal(byteGroupSize, n)
	assert.Equal(group, dst[:n], "width 8 copies the group verbatim")
}

func TestEncodeGroupEscapes(t *testing.T) {
	assert := assert.New(t)

	// 15 zeros and one outlier: the outlier is replaced by the sentinel in
	// the fixed section and appended as a literal byte.
	var group [byteGroupSize]byte
	group[3] = 200

	dst := make([]byte, byteGroupDecodeLimit)
	n, ok := encodeGroupTry(dst, group[:], 2)
	assert.True(ok)
	assert.Equal(5, n, "4 fixed bytes plus one escape")
	assert.Equal([]byte{0x03, 0, 0, 0, 200}, dst[:n])
}

func TestEncodeGroupAllEscapes(t *testing.T) {
	assert := assert.New(t)

	group := make([]byte, byteGroupSize)
	for i := range group {
		group[i] = 0xf0
	}

	dst := make([]byte, byteGroupDecodeLimit)
	n, ok := encodeGroupTry(dst, group, 4)
	assert.True(ok)
	assert.Equal(byteGroupDecodeLimit, n, "worst case: 8 fixed bytes plus 16 escapes")

	_, ok = encodeGroupTry(dst[:byteGroupDecodeLimit-1], group, 4)
	assert.False(ok, "expected no-space signal one byte short of the worst case")
}

func TestPackColumnWidthSelection(t *testing.T) {
	assert := assert.New(t)

	// Values of 2 fit the 2-bit fields without escapes.
	buffer := bytes.Repeat([]byte{2}, byteGroupSize)
	dst := make([]byte, 64)
	n, err := packColumn(dst, buffer, 0, noopObserver{})
	assert.NoError(err)
	assert.Equal(5, n, "1 header byte plus 4 packed bytes")
	assert.Equal(byte(1), dst[0], "expected width code 1 (2 bits)")
	assert.Equal(bytes.Repeat([]byte{0xaa}, 4), dst[1:5])

	// Values of 3 collide with the 2-bit sentinel; 4 bits wins.
	buffer = bytes.Repeat([]byte{3}, byteGroupSize)
	n, err = packColumn(dst, buffer, 0, noopObserver{})
	assert.NoError(err)
	assert.Equal(9, n, "1 header byte plus 8 packed bytes")
	assert.Equal(byte(2), dst[0], "expected width code 2 (4 bits)")
	assert.Equal(bytes.Repeat([]byte{0x33}, 8), dst[1:9])
}

func TestPackColumnNoSpace(t *testing.T) {
	assert := assert.New(t)

	buffer := bytes.Repeat([]byte{2}, byteGroupSize)

	_, err := packColumn(nil, buffer, 0, noopObserver{})
	assert.ErrorIs(err, ErrShortBuffer, "header should not fit")

	_, err = packColumn(make([]byte, 1+byteGroupDecodeLimit-1), buffer, 0, noopObserver{})
	assert.ErrorIs(err, ErrShortBuffer, "group headroom should not fit")
}

func TestEncodeValidatesVertexSize(t *testing.T) {
	assert := assert.New(t)

	for _, size := range []int{-4, 0, 3, 13, 260} {
		assert.Panics(func() {
			Encode(make([]byte, 64), nil, size) //nolint:errcheck
		}, "expected panic for vertex size %d", size)
	}

	assert.Panics(func() {
		Encode(make([]byte, 64), make([]byte, 10), 4) //nolint:errcheck
	}, "expected panic for a partial trailing vertex")
}

func TestEncodeEmptyBuffer(t *testing.T) {
	assert := assert.New(t)

	dst := make([]byte, EncodeBound(0, 16))
	n, err := Encode(dst, []byte{}, 16)
	assert.NoError(err)
	assert.Equal(1+tailMaxSize, n, "empty buffer is header plus tail")
	assert.Equal(byte(0xa1), dst[0])
	assert.Equal(bytes.Repeat([]byte{0}, tailMaxSize), dst[1:n], "tail should be an all-zero first vertex")
}

func TestEncodeConcreteScenario(t *testing.T) {
	assert := assert.New(t)

	// 17 identical vertices: every delta is zero, so each of the 4 columns
	// is a single zero header byte covering two all-zero groups.
	vertices := bytes.Repeat([]byte{1, 2, 3, 4}, 17)

	dst := make([]byte, EncodeBound(17, 4))
	n, err := Encode(dst, vertices, 4)
	assert.NoError(err)

	want := []byte{0xa1, 0, 0, 0, 0}
	want = append(want, bytes.Repeat([]byte{0}, 28)...)
	want = append(want, 1, 2, 3, 4)
	assert.Equal(want, dst[:n], "unexpected stream for 17 identical vertices")
}

func TestEncodeDeterministic(t *testing.T) {
	assert := assert.New(t)

	vertices := genSmoothVertices(500, 16, 7)

	a := make([]byte, EncodeBound(500, 16))
	b := make([]byte, EncodeBound(500, 16))
	na, err := Encode(a, vertices, 16)
	assert.NoError(err)
	nb, err := Encode(b, vertices, 16)
	assert.NoError(err)

	assert.Equal(a[:na], b[:nb], "same input must produce byte-identical output")
}

func TestEncodeBoundRespected(t *testing.T) {
	for _, tc := range []struct {
		stride, count int
	}{
		{4, 0}, {4, 1}, {4, 17}, {4, 10000},
		{12, 333}, {16, 256}, {16, 257},
		{64, 100}, {256, 100},
	} {
		bound := EncodeBound(tc.count, tc.stride)
		dst := make([]byte, bound)

		n, err := Encode(dst, genRandomVertices(tc.count, tc.stride, 42), tc.stride)
		require.NoError(t, err, "stride %d count %d", tc.stride, tc.count)
		assert.LessOrEqual(t, n, bound, "stride %d count %d exceeded its bound", tc.stride, tc.count)
	}
}

func TestEncodeBoundMonotonic(t *testing.T) {
	assert := assert.New(t)

	for _, stride := range []int{4, 16, 64, 256} {
		assert.Equal(1+max(stride, tailMaxSize), EncodeBound(0, stride), "stride %d empty bound", stride)

		prev := 0
		for _, count := range []int{0, 1, 15, 16, 17, 255, 256, 257, 4096, 10000} {
			bound := EncodeBound(count, stride)
			assert.GreaterOrEqual(bound, prev, "stride %d count %d", stride, count)
			prev = bound
		}
	}
}

func TestEncodeTailInvariant(t *testing.T) {
	for _, stride := range []int{4, 16, 32, 64} {
		vertices := genRandomVertices(33, stride, int64(stride))

		dst := make([]byte, EncodeBound(33, stride))
		n, err := Encode(dst, vertices, stride)
		require.NoError(t, err, "stride %d", stride)

		tailSize := max(stride, tailMaxSize)
		tail := dst[n-tailSize : n]
		assert.Equal(t, bytes.Repeat([]byte{0}, tailSize-stride), tail[:tailSize-stride], "stride %d tail padding", stride)
		assert.Equal(t, vertices[:stride], tail[tailSize-stride:], "stride %d tail must hold the raw first vertex", stride)
	}
}

func TestEncodeShortBuffer(t *testing.T) {
	assert := assert.New(t)

	vertices := genRandomVertices(16, 4, 1)

	_, err := Encode(nil, vertices, 4)
	assert.ErrorIs(err, ErrShortBuffer, "no room for the stream header")

	_, err = Encode(make([]byte, 4), vertices, 4)
	assert.ErrorIs(err, ErrShortBuffer, "header requires 1+vertexSize bytes")

	_, err = Encode(make([]byte, 8), vertices, 4)
	assert.ErrorIs(err, ErrShortBuffer, "no room for block data")

	_, err = Encode(make([]byte, 10), []byte{}, 4)
	assert.ErrorIs(err, ErrShortBuffer, "no room for the tail")
}

func TestVertexBlockSize(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(256, vertexBlockSize(4), "small strides cap at the max block size")
	assert.Equal(256, vertexBlockSize(16))
	assert.Equal(160, vertexBlockSize(48), "8192/48 truncated to a multiple of 16")
	assert.Equal(32, vertexBlockSize(256))
}

var resultBytes []byte

func BenchmarkEncode(b *testing.B) {
	vertices := genSmoothVertices(10000, 16, 99)
	dst := make([]byte, EncodeBound(10000, 16))
	b.SetBytes(int64(len(vertices)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		n, err := Encode(dst, vertices, 16)
		if err != nil {
			b.Fatal(err)
		}
		resultBytes = dst[:n]
	}
}

func BenchmarkDecode(b *testing.B) {
	vertices := genSmoothVertices(10000, 16, 99)
	buf := make([]byte, EncodeBound(10000, 16))
	n, err := Encode(buf, vertices, 16)
	if err != nil {
		b.Fatal(err)
	}
	dst := make([]byte, len(vertices))
	b.SetBytes(int64(len(vertices)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(dst, buf[:n], 10000, 16); err != nil {
			b.Fatal(err)
		}
	}
	resultBytes = dst
}

// Helpers

func genRandomVertices(count, stride int, seed int64) []byte {
	out := make([]byte, count*stride)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = byte(rng.Intn(256))
	}
	return out
}

// genSmoothVertices produces mesh-like data: per-byte values that drift
// slowly from vertex to vertex, so most deltas are small.
func genSmoothVertices(count, stride int, seed int64) []byte {
	out := make([]byte, count*stride)
	rng := rand.New(rand.NewSource(seed))

	current := make([]byte, stride)
	for k := range current {
		current[k] = byte(rng.Intn(256))
	}

	for i := 0; i < count; i++ {
		for k := 0; k < stride; k++ {
			current[k] += byte(rng.Intn(5) - 2)
			out[i*stride+k] = current[k]
		}
	}
	return out
}
