package adselection

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/codec"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
)

// ProtectedAudienceInput is the unformatted payload: every buyer's
// compressed input plus request-level fields.
type ProtectedAudienceInput struct {
	BuyerInput           map[core.BuyerID][]byte `cbor:"1,keyasint" json:"buyer_input"`
	PublisherName        string                  `cbor:"2,keyasint,omitempty" json:"publisher_name,omitempty"`
	EnableDebugReporting bool                    `cbor:"3,keyasint,omitempty" json:"enable_debug_reporting,omitempty"`
	GenerationID         string                  `cbor:"4,keyasint" json:"generation_id"`
}

// NewProtectedAudienceInput copies each buyer's compressed bytes.
func NewProtectedAudienceInput(inputs map[core.BuyerID]compression.CompressedData, publisher string, debugReporting bool, generationID string) *ProtectedAudienceInput {
	buyerInput := make(map[core.BuyerID][]byte, len(inputs))
	for buyer, data := range inputs {
		buyerInput[buyer] = data.Bytes()
	}
	return &ProtectedAudienceInput{
		BuyerInput:           buyerInput,
		PublisherName:        publisher,
		EnableDebugReporting: debugReporting,
		GenerationID:         generationID,
	}
}

// Marshal encodes the input deterministically.
func (p *ProtectedAudienceInput) Marshal() ([]byte, error) {
	data, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode protected audience input: %w", err)
	}
	return data, nil
}

// UnmarshalProtectedAudienceInput decodes an unformatted payload.
func UnmarshalProtectedAudienceInput(data []byte) (*ProtectedAudienceInput, error) {
	var input ProtectedAudienceInput
	if err := codec.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode protected audience input: %w", err)
	}
	return &input, nil
}

// CompressedInputs returns BuyerInput as compressed buffers.
func (p *ProtectedAudienceInput) CompressedInputs() map[core.BuyerID]compression.CompressedData {
	out := make(map[core.BuyerID]compression.CompressedData, len(p.BuyerInput))
	for buyer, data := range p.BuyerInput {
		out[buyer] = compression.NewCompressedData(data)
	}
	return out
}
