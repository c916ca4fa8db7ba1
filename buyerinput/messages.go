package buyerinput

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/codec"
	"github.com/cloudx-io/protectedauction/core"
)

// BuyerInput is the per-buyer message carried, compressed, inside an auction
// payload.
type BuyerInput struct {
	CustomAudiences     []CustomAudience     `cbor:"1,keyasint,omitempty" json:"custom_audiences,omitempty"`
	ProtectedAppSignals *ProtectedAppSignals `cbor:"2,keyasint,omitempty" json:"protected_app_signals,omitempty"`
}

// CustomAudience is the wire form of one candidate record.
type CustomAudience struct {
	Name               string   `cbor:"1,keyasint" json:"name"`
	Owner              string   `cbor:"2,keyasint,omitempty" json:"owner,omitempty"`
	UserBiddingSignals string   `cbor:"3,keyasint,omitempty" json:"user_bidding_signals,omitempty"`
	BiddingSignalsKeys []string `cbor:"4,keyasint,omitempty" json:"bidding_signals_keys,omitempty"`
	AdRenderIDs        []string `cbor:"5,keyasint,omitempty" json:"ad_render_ids,omitempty"`
	AdCounterKeys      []int32  `cbor:"6,keyasint,omitempty" json:"ad_counter_keys,omitempty"`
}

// ProtectedAppSignals carries a buyer's encoded app signals.
type ProtectedAppSignals struct {
	AppInstallSignals []byte `cbor:"1,keyasint" json:"app_install_signals"`
	EncodingVersion   int    `cbor:"2,keyasint" json:"encoding_version"`
}

// NewCustomAudience builds the wire message for a candidate. Ads without a
// render ID are left out of AdRenderIDs; counter keys are collected from
// every ad in order.
func NewCustomAudience(candidate core.CandidateRecord) CustomAudience {
	ca := CustomAudience{
		Name:               candidate.Name,
		Owner:              candidate.Owner,
		UserBiddingSignals: candidate.UserBiddingSignals,
	}
	if len(candidate.TrustedBiddingKeys) > 0 {
		ca.BiddingSignalsKeys = append([]string(nil), candidate.TrustedBiddingKeys...)
	}
	for _, ad := range candidate.Ads {
		if ad.RenderID != "" {
			ca.AdRenderIDs = append(ca.AdRenderIDs, ad.RenderID)
		}
		ca.AdCounterKeys = append(ca.AdCounterKeys, ad.AdCounterKeys...)
	}
	return ca
}

// NewProtectedAppSignals wraps a signal blob, or returns nil when the blob
// carries no bytes.
func NewProtectedAppSignals(blob core.SignalBlob) *ProtectedAppSignals {
	if len(blob.Payload) == 0 {
		return nil
	}
	return &ProtectedAppSignals{
		AppInstallSignals: append([]byte(nil), blob.Payload...),
		EncodingVersion:   blob.Version,
	}
}

// IsEmpty reports whether the message carries neither candidates nor signals.
func (b *BuyerInput) IsEmpty() bool {
	return len(b.CustomAudiences) == 0 && b.ProtectedAppSignals == nil
}

// Marshal encodes the message deterministically.
func (b *BuyerInput) Marshal() ([]byte, error) {
	data, err := codec.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode buyer input: %w", err)
	}
	return data, nil
}

// UnmarshalBuyerInput decodes a message produced by BuyerInput.Marshal.
func UnmarshalBuyerInput(data []byte) (*BuyerInput, error) {
	var input BuyerInput
	if err := codec.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode buyer input: %w", err)
	}
	return &input, nil
}

// encodedSize is the uncompressed size of a custom audience message.
func encodedSize(ca CustomAudience) (int, error) {
	data, err := codec.Marshal(ca)
	if err != nil {
		return 0, fmt.Errorf("encode custom audience %q: %w", ca.Name, err)
	}
	return len(data), nil
}
