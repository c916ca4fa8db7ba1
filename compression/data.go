package compression

import "bytes"

// UncompressedData is an immutable byte buffer awaiting compression.
// Construction and Bytes both copy, so callers never share memory with the
// pipeline.
type UncompressedData struct {
	data []byte
}

// NewUncompressedData copies data into a new UncompressedData.
func NewUncompressedData(data []byte) UncompressedData {
	return UncompressedData{data: bytes.Clone(nonNil(data))}
}

// Bytes returns a copy of the buffer.
func (d UncompressedData) Bytes() []byte { return bytes.Clone(nonNil(d.data)) }

// Len returns the buffer length.
func (d UncompressedData) Len() int { return len(d.data) }

// Equal reports whether both buffers hold the same bytes.
func (d UncompressedData) Equal(other UncompressedData) bool {
	return bytes.Equal(d.data, other.data)
}

// CompressedData is an immutable compressed byte buffer.
type CompressedData struct {
	data []byte
}

// NewCompressedData copies data into a new CompressedData.
func NewCompressedData(data []byte) CompressedData {
	return CompressedData{data: bytes.Clone(nonNil(data))}
}

// Bytes returns a copy of the buffer.
func (d CompressedData) Bytes() []byte { return bytes.Clone(nonNil(d.data)) }

// Len returns the buffer length.
func (d CompressedData) Len() int { return len(d.data) }

// Equal reports whether both buffers hold the same bytes.
func (d CompressedData) Equal(other CompressedData) bool {
	return bytes.Equal(d.data, other.data)
}

// TotalSize sums the lengths of a set of compressed buffers.
func TotalSize[K comparable](inputs map[K]CompressedData) int {
	total := 0
	for _, data := range inputs {
		total += data.Len()
	}
	return total
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
