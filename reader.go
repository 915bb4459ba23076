package vertexpack

import (
	"errors"
	"fmt"
)

// Reader provides random access to the vertices of an encoded stream.
// A Reader is not safe for concurrent use. Create multiple readers from
// the same buffer if concurrent access is needed.
type Reader struct {
	// vertices holds the decoded vertex bytes (decoded once on Load)
	vertices []byte

	// stride is the vertex size in bytes
	stride int

	// count is the number of vertices in the stream
	count int

	// pos is the current position for sequential iteration (0-based)
	pos int

	// loaded indicates if the reader has been loaded with data
	loaded bool
}

// ErrNotLoaded is returned when operations are called before Load().
var ErrNotLoaded = errors.New("vertexpack: reader not loaded")

// ErrPositionOutOfRange is returned when accessing a vertex beyond the
// stream's vertex count.
var ErrPositionOutOfRange = errors.New("vertexpack: position out of range")

// NewReader creates an empty Reader that must be loaded with Load() before use.
func NewReader() *Reader {
	return &Reader{}
}

// Load decodes an encoded stream into the reader. This resets all internal
// state and can be called multiple times to reuse the reader and its decode
// buffer. vertexCount and vertexSize must match the values the stream was
// encoded with; vertexSize follows the Encode contract and violations panic.
func (r *Reader) Load(buf []byte, vertexCount, vertexSize int) error {
	validateVertexSize(vertexSize)
	if vertexCount < 0 {
		panic(fmt.Sprintf("vertexpack: invalid vertex count %d", vertexCount))
	}

	need := vertexCount * vertexSize
	if cap(r.vertices) < need {
		r.vertices = make([]byte, need)
	} else {
		r.vertices = r.vertices[:need]
	}

	if _, err := Decode(r.vertices, buf, vertexCount, vertexSize); err != nil {
		return err
	}

	r.stride = vertexSize
	r.count = vertexCount
	r.pos = 0
	r.loaded = true

	return nil
}

// IsLoaded returns whether the reader has been loaded with data.
func (r *Reader) IsLoaded() bool {
	return r.loaded
}

// Len returns the number of vertices in the stream.
func (r *Reader) Len() int {
	return r.count
}

// Stride returns the vertex size in bytes.
func (r *Reader) Stride() int {
	return r.stride
}

// Pos returns the current position for sequential iteration.
func (r *Reader) Pos() int {
	return r.pos
}

// Reset resets the reader position to the beginning for sequential iteration.
func (r *Reader) Reset() {
	r.pos = 0
}

// Vertex returns the raw bytes of the vertex at the specified position.
// The returned slice aliases the reader's decode buffer and is valid until
// the next Load. Returns an error if the reader is not loaded or pos is out
// of range.
func (r *Reader) Vertex(pos int) ([]byte, error) {
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	if pos < 0 || pos >= r.count {
		return nil, ErrPositionOutOfRange
	}
	return r.vertices[pos*r.stride : (pos+1)*r.stride], nil
}

// Next returns the next vertex in sequence and its position.
// Returns (vertex, pos, true) on success, or (nil, 0, false) if not loaded
// or no more vertices remain.
func (r *Reader) Next() (vertex []byte, pos int, ok bool) {
	if !r.loaded || r.pos >= r.count {
		return nil, 0, false
	}
	vertex = r.vertices[r.pos*r.stride : (r.pos+1)*r.stride]
	pos = r.pos
	r.pos++
	return vertex, pos, true
}

// Bytes returns the full decoded vertex buffer. The returned slice aliases
// the reader's decode buffer and is valid until the next Load. Returns nil
// if the reader is not loaded.
func (r *Reader) Bytes() []byte {
	if !r.loaded {
		return nil
	}
	return r.vertices
}
