package format

import (
	"fmt"
	"sort"

	"github.com/cloudx-io/protectedauction/core"
)

// BucketListFormatter pads payloads to the smallest configured bucket that
// holds them.
type BucketListFormatter struct {
	buckets []int
}

// NewBucketListFormatter validates and sorts the allowed bucket sizes.
// Empty lists and buckets that cannot hold a header fail with
// core.ErrConfiguration.
func NewBucketListFormatter(bucketSizes []int) (*BucketListFormatter, error) {
	if len(bucketSizes) == 0 {
		return nil, fmt.Errorf("%w: bucket list is empty", core.ErrConfiguration)
	}

	buckets := make([]int, len(bucketSizes))
	copy(buckets, bucketSizes)
	sort.Ints(buckets)

	if buckets[0] < HeaderLength {
		return nil, fmt.Errorf("%w: bucket size %d cannot hold the %d byte header",
			core.ErrConfiguration, buckets[0], HeaderLength)
	}

	return &BucketListFormatter{buckets: buckets}, nil
}

// Version returns VersionBucketList.
func (f *BucketListFormatter) Version() uint8 { return VersionBucketList }

// Buckets returns a copy of the sorted bucket sizes.
func (f *BucketListFormatter) Buckets() []int {
	out := make([]int, len(f.buckets))
	copy(out, f.buckets)
	return out
}

// Apply frames data into the smallest bucket that fits, or fails with
// core.ErrPayloadTooLarge when none does.
func (f *BucketListFormatter) Apply(data UnformattedData, compressionVersion uint8) (FormattedData, error) {
	if err := checkCompressionVersion(compressionVersion); err != nil {
		return FormattedData{}, err
	}
	required, err := requiredSize(data)
	if err != nil {
		return FormattedData{}, err
	}

	index := sort.SearchInts(f.buckets, required)
	if index == len(f.buckets) {
		return FormattedData{}, fmt.Errorf("%w: %d bytes exceeds the largest bucket of %d bytes",
			core.ErrPayloadTooLarge, required, f.buckets[len(f.buckets)-1])
	}

	return frame(VersionBucketList, compressionVersion, data.data, f.buckets[index])
}
