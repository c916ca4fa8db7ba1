package format

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/core"
)

// ExactSizeFormatter pads every payload to one caller-chosen size.
type ExactSizeFormatter struct {
	target int
}

// NewExactSizeFormatter returns a formatter padding to target bytes. A target
// that cannot hold the header fails with core.ErrConfiguration.
func NewExactSizeFormatter(target int) (*ExactSizeFormatter, error) {
	if target < HeaderLength {
		return nil, fmt.Errorf("%w: target size %d cannot hold the %d byte header",
			core.ErrConfiguration, target, HeaderLength)
	}
	return &ExactSizeFormatter{target: target}, nil
}

// Version returns VersionExactSize.
func (f *ExactSizeFormatter) Version() uint8 { return VersionExactSize }

// TargetSize returns the configured total size.
func (f *ExactSizeFormatter) TargetSize() int { return f.target }

// Apply frames data and pads it to exactly the target size.
func (f *ExactSizeFormatter) Apply(data UnformattedData, compressionVersion uint8) (FormattedData, error) {
	if err := checkCompressionVersion(compressionVersion); err != nil {
		return FormattedData{}, err
	}
	required, err := requiredSize(data)
	if err != nil {
		return FormattedData{}, err
	}
	if required > f.target {
		return FormattedData{}, fmt.Errorf("%w: %d bytes exceeds the target size of %d bytes",
			core.ErrPayloadTooLarge, required, f.target)
	}

	return frame(VersionExactSize, compressionVersion, data.data, f.target)
}
