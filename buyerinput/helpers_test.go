package buyerinput

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
)

const (
	buyerA core.BuyerID = "buyer-a.example"
	buyerB core.BuyerID = "buyer-b.example"
	buyerC core.BuyerID = "buyer-c.example"
)

func newCandidate(buyer core.BuyerID, name string, priority float64) core.CandidateRecord {
	sum := sha256.Sum256([]byte(string(buyer) + "/" + name))
	return core.CandidateRecord{
		Owner:              "com.example.app",
		Buyer:              buyer,
		Name:               name,
		Priority:           priority,
		UserBiddingSignals: `{"seed":"` + hex.EncodeToString(sum[:]) + `"}`,
		TrustedBiddingKeys: []string{"key-" + name},
		Ads: []core.AdRecord{
			{RenderID: "ad-" + hex.EncodeToString(sum[:6]), RenderURI: "https://" + string(buyer) + "/ad/" + name, AdCounterKeys: []int32{1, 2}},
		},
	}
}

// bulkCandidates returns n candidates per buyer with distinct priorities.
func bulkCandidates(buyers []core.BuyerID, n int) []core.CandidateRecord {
	var out []core.CandidateRecord
	for _, buyer := range buyers {
		for i := 0; i < n; i++ {
			out = append(out, newCandidate(buyer, fmt.Sprintf("ca-%03d", i), float64(i)))
		}
	}
	return out
}

func signalBlob(buyer core.BuyerID, size int) core.SignalBlob {
	payload := make([]byte, 0, size)
	for seed := 0; len(payload) < size; seed++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", buyer, seed)))
		payload = append(payload, sum[:]...)
	}
	return core.SignalBlob{Buyer: buyer, Version: 2, Payload: payload[:size]}
}

func gzipCompressor(t *testing.T) compression.Compressor {
	t.Helper()
	compressor, err := compression.New(compression.VersionGzip)
	assert.NoError(t, err)
	return compressor
}

// decode decompresses and decodes every buyer input.
func decode(t *testing.T, compressor compression.Compressor, inputs map[core.BuyerID]compression.CompressedData) map[core.BuyerID]*BuyerInput {
	t.Helper()
	out := make(map[core.BuyerID]*BuyerInput, len(inputs))
	for buyer, data := range inputs {
		raw, err := compressor.Decompress(data)
		assert.NoError(t, err)
		message, err := UnmarshalBuyerInput(raw.Bytes())
		assert.NoError(t, err)
		out[buyer] = message
	}
	return out
}

func names(message *BuyerInput) []string {
	out := make([]string, 0, len(message.CustomAudiences))
	for _, ca := range message.CustomAudiences {
		out = append(out, ca.Name)
	}
	return out
}

type staticFetcher struct {
	candidates []core.CandidateRecord
	signals    map[core.BuyerID]core.SignalBlob
	err        error
	onFetch    func()

	gotBuyers    []core.BuyerID
	gotFreshness time.Duration
}

func (f *staticFetcher) FetchCandidates(_ context.Context, buyers []core.BuyerID, freshness time.Duration) ([]core.CandidateRecord, map[core.BuyerID]core.SignalBlob, error) {
	f.gotBuyers = buyers
	f.gotFreshness = freshness
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.candidates, f.signals, nil
}
