package format

import (
	"fmt"
	"math"
)

// minPowerOfTwoBucket is the first bucket tried by PowerOfTwoFormatter.
const minPowerOfTwoBucket = 1024

// PowerOfTwoFormatter pads payloads to the smallest power of two, starting at
// 1 KiB, that holds them. It has no upper bound.
type PowerOfTwoFormatter struct{}

// NewPowerOfTwoFormatter returns a PowerOfTwoFormatter.
func NewPowerOfTwoFormatter() PowerOfTwoFormatter { return PowerOfTwoFormatter{} }

// Version returns VersionPowerOfTwo.
func (PowerOfTwoFormatter) Version() uint8 { return VersionPowerOfTwo }

// Apply frames data into the next power-of-two bucket.
func (PowerOfTwoFormatter) Apply(data UnformattedData, compressionVersion uint8) (FormattedData, error) {
	if err := checkCompressionVersion(compressionVersion); err != nil {
		return FormattedData{}, err
	}
	required, err := requiredSize(data)
	if err != nil {
		return FormattedData{}, err
	}

	return frame(VersionPowerOfTwo, compressionVersion, data.data, PowerOfTwoBucket(required))
}

// PowerOfTwoBucket returns the bucket size chosen for a framed size of
// required bytes.
func PowerOfTwoBucket(required int) int {
	bucket := minPowerOfTwoBucket
	for bucket < required {
		if bucket > math.MaxInt/2 {
			panic(fmt.Sprintf("format: no power-of-two bucket holds %d bytes", required))
		}
		bucket *= 2
	}
	return bucket
}
