package vertexpack

import (
	"fmt"
	"io"
)

// Observer receives measurements from the encoder as byte columns are
// packed. Observers are passed explicitly to EncodeWithObserver and scoped
// to that call; the encoder never stores one globally. Implementations are
// invoked synchronously from the encode path and must not retain the
// arguments beyond the call.
type Observer interface {
	// GroupEncoded reports one packed group: the byte offset within the
	// stride, the chosen 2-bit width code (0..3) and the packed size in
	// bytes (header bytes excluded).
	GroupEncoded(offset, widthCode, size int)

	// ColumnEncoded reports one finished column pass: the byte offset
	// within the stride, the column's header size and its total encoded
	// size including the header. A column is reported once per block.
	ColumnEncoded(offset, headerSize, size int)
}

// noopObserver is the default observer; it measures nothing.
type noopObserver struct{}

func (noopObserver) GroupEncoded(int, int, int)  {}
func (noopObserver) ColumnEncoded(int, int, int) {}

// ColumnStats holds accumulated measurements for one byte offset of the
// stride, summed across all blocks of an encode.
type ColumnStats struct {
	// Bytes is the total encoded size of the column, headers included.
	Bytes int
	// HeaderBytes is the portion spent on width-code headers.
	HeaderBytes int
	// GroupBytes is the payload size per width code (0..3).
	GroupBytes [4]int
}

// Stats is an Observer that accumulates per-column size measurements.
// Pass it to EncodeWithObserver and render the result with Report. A Stats
// value observes one encode at a time; call Reset before reusing it.
type Stats struct {
	columns [MaxVertexSize]ColumnStats
	stride  int
}

// NewStats returns an empty Stats collector.
func NewStats() *Stats {
	return &Stats{}
}

// GroupEncoded implements Observer.
func (s *Stats) GroupEncoded(offset, widthCode, size int) {
	s.columns[offset].GroupBytes[widthCode] += size
}

// ColumnEncoded implements Observer.
func (s *Stats) ColumnEncoded(offset, headerSize, size int) {
	c := &s.columns[offset]
	c.HeaderBytes += headerSize
	c.Bytes += size
	if offset >= s.stride {
		s.stride = offset + 1
	}
}

// Column returns the accumulated measurements for one byte offset.
func (s *Stats) Column(offset int) ColumnStats {
	return s.columns[offset]
}

// Stride returns the number of byte offsets observed.
func (s *Stats) Stride() int {
	return s.stride
}

// TotalBytes returns the summed encoded size of all columns. This excludes
// the one-byte stream header and the tail.
func (s *Stats) TotalBytes() int {
	total := 0
	for k := 0; k < s.stride; k++ {
		total += s.columns[k].Bytes
	}
	return total
}

// Reset clears all accumulated measurements.
func (s *Stats) Reset() {
	clear(s.columns[:s.stride])
	s.stride = 0
}

// Report writes a per-column table to w: encoded bytes, share of the column
// total, bits per vertex, and the header/width-class breakdown.
func (s *Stats) Report(w io.Writer, vertexCount int) error {
	total := s.TotalBytes()

	for k := 0; k < s.stride; k++ {
		c := s.columns[k]

		bpv := 0.0
		if vertexCount > 0 {
			bpv = float64(c.Bytes) / float64(vertexCount) * 8
		}

		_, err := fmt.Fprintf(w, "%3d: %7d bytes [%4.1f%%] %5.1f bpv | hdr [%5.1f%%] width 2/4/8 [%4.1f%% %4.1f%% %4.1f%%]\n",
			k, c.Bytes, percent(c.Bytes, total), bpv,
			percent(c.HeaderBytes, c.Bytes),
			percent(c.GroupBytes[1], c.Bytes), percent(c.GroupBytes[2], c.Bytes), percent(c.GroupBytes[3], c.Bytes))
		if err != nil {
			return err
		}
	}

	return nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
