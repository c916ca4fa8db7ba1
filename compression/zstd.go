package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdEncoder and zstdDecoder are shared across calls; both are safe for
// concurrent use through EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
		// Empty input still produces a complete frame so it round-trips.
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic("compression: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCompressor struct{}

func (zstdCompressor) Version() uint8 { return VersionZstd }

func (zstdCompressor) Compress(data UncompressedData) (CompressedData, error) {
	compressed := zstdEncoder.EncodeAll(data.data, nil)
	if len(compressed) == 0 {
		return CompressedData{}, fmt.Errorf("zstd compress: encoder produced no frame")
	}
	return CompressedData{data: compressed}, nil
}

func (zstdCompressor) Decompress(data CompressedData) (UncompressedData, error) {
	if len(data.data) == 0 {
		return UncompressedData{}, errEmptyInput("zstd")
	}
	decompressed, err := zstdDecoder.DecodeAll(data.data, nil)
	if err != nil {
		return UncompressedData{}, decodeError("zstd", err)
	}
	return UncompressedData{data: nonNil(decompressed)}, nil
}
