// Package compression implements the versioned codecs applied to buyer inputs
// before they are framed into an auction payload.
package compression

import (
	"fmt"
	"sort"

	"github.com/cloudx-io/protectedauction/core"
)

// Compressor is a stateless codec. Implementations are safe for concurrent
// use and always return freshly allocated buffers.
type Compressor interface {
	Compress(data UncompressedData) (CompressedData, error)
	Decompress(data CompressedData) (UncompressedData, error)

	// Version is the compression version written into the payload meta byte.
	Version() uint8
}

// Compression versions. These values travel in the low five bits of the
// payload meta byte; changing them breaks wire compatibility.
const (
	// VersionGzip is stream compression, the version auction coordinators
	// accept by default.
	VersionGzip uint8 = 2

	// VersionZstd trades CPU for a better ratio on large buyer inputs.
	VersionZstd uint8 = 3

	// VersionLZ4 is the fastest codec, for latency-sensitive callers.
	VersionLZ4 uint8 = 4
)

var registry = map[uint8]func() Compressor{
	VersionGzip: func() Compressor { return gzipCompressor{} },
	VersionZstd: func() Compressor { return zstdCompressor{} },
	VersionLZ4:  func() Compressor { return lz4Compressor{} },
}

// New returns the compressor registered for version. Unknown versions fail
// with core.ErrConfiguration.
func New(version uint8) (Compressor, error) {
	factory, ok := registry[version]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported compression version %d (supported: %v)",
			core.ErrConfiguration, version, SupportedVersions())
	}
	return factory(), nil
}

// SupportedVersions lists registered versions in ascending order.
func SupportedVersions() []uint8 {
	versions := make([]uint8, 0, len(registry))
	for version := range registry {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

// VersionName returns a human-readable codec name.
func VersionName(version uint8) string {
	switch version {
	case VersionGzip:
		return "gzip"
	case VersionZstd:
		return "zstd"
	case VersionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", version)
	}
}

func decodeError(codec string, err error) error {
	return fmt.Errorf("%w: %s decompress: %v", core.ErrDecode, codec, err)
}

func errEmptyInput(codec string) error {
	return fmt.Errorf("%w: %s decompress: empty input", core.ErrDecode, codec)
}
