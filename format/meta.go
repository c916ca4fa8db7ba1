package format

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/core"
)

// Header layout shared by every formatter version:
//
//	[0]       meta byte: bits 7-5 format version, bits 4-0 compression version
//	[1..4]    big-endian uint32 length N of the unformatted payload
//	[5..5+N)  payload bytes
//	[5+N..)   zero padding
const (
	MetaInfoLength    = 1
	DataSizeLength    = 4
	HeaderLength      = MetaInfoLength + DataSizeLength
	formatVersionBits = 3
	compressionBits   = 5

	// MaxFormatVersion is the largest value the three format bits hold.
	MaxFormatVersion = 1<<formatVersionBits - 1

	// MaxCompressionVersion is the largest value the five compression bits hold.
	MaxCompressionVersion = 1<<compressionBits - 1
)

// EncodeMetaByte packs a format version and a compression version into the
// payload meta byte. Values wider than their bit fields fail with
// core.ErrConfiguration.
func EncodeMetaByte(formatVersion, compressionVersion uint8) (byte, error) {
	if formatVersion > MaxFormatVersion {
		return 0, fmt.Errorf("%w: format version %d exceeds %d bits",
			core.ErrConfiguration, formatVersion, formatVersionBits)
	}
	if compressionVersion > MaxCompressionVersion {
		return 0, fmt.Errorf("%w: compression version %d exceeds %d bits",
			core.ErrConfiguration, compressionVersion, compressionBits)
	}
	return formatVersion<<compressionBits | compressionVersion, nil
}

// DecodeMetaByte splits the payload meta byte into its format version and
// compression version.
func DecodeMetaByte(meta byte) (formatVersion, compressionVersion uint8) {
	return meta >> compressionBits, meta & MaxCompressionVersion
}
