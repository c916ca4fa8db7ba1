// Package format frames a serialized auction payload into a size bucket so
// its true length is hidden from the network, and reverses that framing.
package format

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cloudx-io/protectedauction/core"
)

// Format versions written into the high three bits of the meta byte.
const (
	VersionBucketList uint8 = 0
	VersionPowerOfTwo uint8 = 1
	VersionExactSize  uint8 = 2
)

// Formatter frames unformatted data into a padded payload. Implementations
// are immutable and safe for concurrent use.
type Formatter interface {
	Apply(data UnformattedData, compressionVersion uint8) (FormattedData, error)

	// Version is the format version written into the meta byte.
	Version() uint8
}

// Header is the decoded framing header of a formatted payload.
type Header struct {
	FormatVersion      uint8
	CompressionVersion uint8
	DataLength         uint32
}

// Config selects and parameterizes a formatter.
type Config struct {
	Version     uint8
	BucketSizes []int
	TargetSize  int
}

// New builds the formatter for cfg.Version.
func New(cfg Config) (Formatter, error) {
	switch cfg.Version {
	case VersionBucketList:
		return NewBucketListFormatter(cfg.BucketSizes)
	case VersionPowerOfTwo:
		return NewPowerOfTwoFormatter(), nil
	case VersionExactSize:
		return NewExactSizeFormatter(cfg.TargetSize)
	default:
		return nil, fmt.Errorf("%w: unsupported format version %d", core.ErrConfiguration, cfg.Version)
	}
}

// Extract reverses the framing of any formatter version.
func Extract(data FormattedData) (UnformattedData, error) {
	_, payload, err := extract(data.data)
	if err != nil {
		return UnformattedData{}, err
	}
	return UnformattedData{data: clone(payload)}, nil
}

// ExtractHeader decodes the header and payload of a formatted buffer.
func ExtractHeader(data FormattedData) (Header, UnformattedData, error) {
	header, payload, err := extract(data.data)
	if err != nil {
		return Header{}, UnformattedData{}, err
	}
	return header, UnformattedData{data: clone(payload)}, nil
}

func extract(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderLength {
		return Header{}, nil, fmt.Errorf("%w: buffer of %d bytes is shorter than the %d byte header",
			core.ErrDataSizeMismatch, len(buf), HeaderLength)
	}

	formatVersion, compressionVersion := DecodeMetaByte(buf[0])
	length := binary.BigEndian.Uint32(buf[MetaInfoLength:HeaderLength])

	if uint64(length) > uint64(len(buf)-HeaderLength) {
		return Header{}, nil, fmt.Errorf("%w: header declares %d data bytes but only %d follow",
			core.ErrDataSizeMismatch, length, len(buf)-HeaderLength)
	}

	header := Header{
		FormatVersion:      formatVersion,
		CompressionVersion: compressionVersion,
		DataLength:         length,
	}
	return header, buf[HeaderLength : HeaderLength+int(length)], nil
}

// frame writes the header and payload into a zeroed buffer of totalSize.
// Callers have already checked that the payload fits.
func frame(formatVersion, compressionVersion uint8, payload []byte, totalSize int) (FormattedData, error) {
	meta, err := EncodeMetaByte(formatVersion, compressionVersion)
	if err != nil {
		return FormattedData{}, err
	}

	out := make([]byte, totalSize)
	out[0] = meta
	binary.BigEndian.PutUint32(out[MetaInfoLength:HeaderLength], uint32(len(payload)))
	copy(out[HeaderLength:], payload)
	return FormattedData{data: out}, nil
}

// requiredSize is the framed size before padding. Payloads whose length does
// not fit the 4-byte length field are rejected as too large.
func requiredSize(data UnformattedData) (int, error) {
	if uint64(len(data.data)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes exceeds the 4-byte length field",
			core.ErrPayloadTooLarge, len(data.data))
	}
	return HeaderLength + len(data.data), nil
}

func checkCompressionVersion(compressionVersion uint8) error {
	if compressionVersion > MaxCompressionVersion {
		return fmt.Errorf("%w: compression version %d exceeds %d bits",
			core.ErrConfiguration, compressionVersion, compressionBits)
	}
	return nil
}
