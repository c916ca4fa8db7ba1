package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzipCompressor writes a single gzip member with a zero modification time,
// so identical input always produces identical output.
type gzipCompressor struct{}

func (gzipCompressor) Version() uint8 { return VersionGzip }

func (gzipCompressor) Compress(data UncompressedData) (CompressedData, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return CompressedData{}, fmt.Errorf("gzip compress: %w", err)
	}
	if _, err := writer.Write(data.data); err != nil {
		return CompressedData{}, fmt.Errorf("gzip compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return CompressedData{}, fmt.Errorf("gzip compress: %w", err)
	}
	return CompressedData{data: buf.Bytes()}, nil
}

func (gzipCompressor) Decompress(data CompressedData) (UncompressedData, error) {
	if len(data.data) == 0 {
		return UncompressedData{}, errEmptyInput("gzip")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data.data))
	if err != nil {
		return UncompressedData{}, decodeError("gzip", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return UncompressedData{}, decodeError("gzip", err)
	}
	return UncompressedData{data: nonNil(decompressed)}, nil
}
