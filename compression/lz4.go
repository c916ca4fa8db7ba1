package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Compressor uses the LZ4 frame format rather than raw blocks: frames are
// self-delimiting and carry a content checksum, so truncation is detected
// without knowing the uncompressed size.
type lz4Compressor struct{}

func (lz4Compressor) Version() uint8 { return VersionLZ4 }

func (lz4Compressor) Compress(data UncompressedData) (CompressedData, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if err := writer.Apply(lz4.ChecksumOption(true)); err != nil {
		return CompressedData{}, fmt.Errorf("lz4 compress: %w", err)
	}
	if _, err := writer.Write(data.data); err != nil {
		return CompressedData{}, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return CompressedData{}, fmt.Errorf("lz4 compress: %w", err)
	}
	return CompressedData{data: buf.Bytes()}, nil
}

func (lz4Compressor) Decompress(data CompressedData) (UncompressedData, error) {
	if len(data.data) == 0 {
		return UncompressedData{}, errEmptyInput("lz4")
	}
	reader := lz4.NewReader(bytes.NewReader(data.data))
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return UncompressedData{}, decodeError("lz4", err)
	}
	return UncompressedData{data: nonNil(decompressed)}, nil
}
