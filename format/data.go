package format

import "bytes"

// UnformattedData is the serialized payload before framing.
type UnformattedData struct {
	data []byte
}

// NewUnformattedData copies data into a new UnformattedData.
func NewUnformattedData(data []byte) UnformattedData {
	return UnformattedData{data: clone(data)}
}

// Bytes returns a copy of the buffer.
func (d UnformattedData) Bytes() []byte { return clone(d.data) }

// Len returns the buffer length.
func (d UnformattedData) Len() int { return len(d.data) }

// Equal reports whether both buffers hold the same bytes.
func (d UnformattedData) Equal(other UnformattedData) bool {
	return bytes.Equal(d.data, other.data)
}

// FormattedData is a framed, padded payload ready to be sent to the auction
// coordinator.
type FormattedData struct {
	data []byte
}

// NewFormattedData copies data into a new FormattedData.
func NewFormattedData(data []byte) FormattedData {
	return FormattedData{data: clone(data)}
}

// Bytes returns a copy of the buffer.
func (d FormattedData) Bytes() []byte { return clone(d.data) }

// Len returns the buffer length.
func (d FormattedData) Len() int { return len(d.data) }

// Equal reports whether both buffers hold the same bytes.
func (d FormattedData) Equal(other FormattedData) bool {
	return bytes.Equal(d.data, other.data)
}

func clone(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return bytes.Clone(data)
}
