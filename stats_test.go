package vertexpack

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsAccountsForEveryColumnByte(t *testing.T) {
	assert := assert.New(t)

	vertices := genSmoothVertices(1000, 16, 31)

	stats := NewStats()
	dst := make([]byte, EncodeBound(1000, 16))
	n, err := EncodeWithObserver(dst, vertices, 16, stats)
	require.NoError(t, err)

	assert.Equal(16, stats.Stride())

	// Everything between the stream header and the tail belongs to exactly
	// one column.
	assert.Equal(n-1-tailMaxSize, stats.TotalBytes())

	for k := 0; k < 16; k++ {
		c := stats.Column(k)
		assert.Equal(c.Bytes, c.HeaderBytes+c.GroupBytes[0]+c.GroupBytes[1]+c.GroupBytes[2]+c.GroupBytes[3],
			"column %d bytes must split into header and width classes", k)
		assert.Equal(0, c.GroupBytes[0], "width code 0 has no payload")
	}
}

func TestStatsZeroColumnOptimality(t *testing.T) {
	assert := assert.New(t)

	// A column that is constant across the block compresses to header-only.
	vertices := bytes.Repeat([]byte{42, 1, 2, 3}, 64)

	stats := NewStats()
	dst := make([]byte, EncodeBound(64, 4))
	_, err := EncodeWithObserver(dst, vertices, 4, stats)
	require.NoError(t, err)

	for k := 0; k < 4; k++ {
		c := stats.Column(k)
		assert.Equal(c.HeaderBytes, c.Bytes, "column %d should be header-only", k)
		assert.Equal([4]int{}, c.GroupBytes, "column %d should have no group payload", k)
	}
}

func TestStatsMatchesPlainEncode(t *testing.T) {
	vertices := genRandomVertices(300, 8, 32)

	a := make([]byte, EncodeBound(300, 8))
	b := make([]byte, EncodeBound(300, 8))

	na, err := Encode(a, vertices, 8)
	require.NoError(t, err)
	nb, err := EncodeWithObserver(b, vertices, 8, NewStats())
	require.NoError(t, err)

	assert.Equal(t, a[:na], b[:nb], "observation must not change the output")
}

func TestStatsReset(t *testing.T) {
	assert := assert.New(t)

	stats := NewStats()
	dst := make([]byte, EncodeBound(100, 4))
	_, err := EncodeWithObserver(dst, genRandomVertices(100, 4, 33), 4, stats)
	require.NoError(t, err)
	assert.NotZero(stats.TotalBytes())

	stats.Reset()
	assert.Zero(stats.Stride())
	assert.Zero(stats.TotalBytes())
	assert.Equal(ColumnStats{}, stats.Column(0))
}

func TestStatsReport(t *testing.T) {
	assert := assert.New(t)

	stats := NewStats()
	dst := make([]byte, EncodeBound(200, 8))
	_, err := EncodeWithObserver(dst, genSmoothVertices(200, 8, 34), 8, stats)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, stats.Report(&out, 200))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(lines, 8, "one report line per byte offset")
	assert.Contains(lines[0], "bytes")
	assert.Contains(lines[0], "bpv")
}
