package buyerinput

import (
	"bytes"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/protectedauction/core"
)

func TestNewCustomAudience(t *testing.T) {
	candidate := core.CandidateRecord{
		Owner:              "com.example.app",
		Buyer:              buyerA,
		Name:               "shoes",
		UserBiddingSignals: `{"size":42}`,
		TrustedBiddingKeys: []string{"k1", "k2"},
		Ads: []core.AdRecord{
			{RenderID: "r1", AdCounterKeys: []int32{7}},
			{RenderURI: "https://buyer-a.example/no-render-id"},
			{RenderID: "r2", AdCounterKeys: []int32{8, 9}},
		},
	}

	ca := NewCustomAudience(candidate)
	check.Equal(t, "shoes", ca.Name)
	check.Equal(t, "com.example.app", ca.Owner)
	check.Equal(t, `{"size":42}`, ca.UserBiddingSignals)
	check.Equal(t, []string{"k1", "k2"}, ca.BiddingSignalsKeys)
	check.Equal(t, []string{"r1", "r2"}, ca.AdRenderIDs)
	check.Equal(t, []int32{7, 8, 9}, ca.AdCounterKeys)

	candidate.TrustedBiddingKeys[0] = "mutated"
	check.Equal(t, "k1", ca.BiddingSignalsKeys[0])
}

func TestNewProtectedAppSignals(t *testing.T) {
	check.Nil(t, NewProtectedAppSignals(core.SignalBlob{Buyer: buyerA}))

	blob := core.SignalBlob{Buyer: buyerA, Version: 3, Payload: []byte{1, 2, 3}}
	signals := NewProtectedAppSignals(blob)
	assert.NotNil(t, signals)
	check.Equal(t, 3, signals.EncodingVersion)

	blob.Payload[0] = 9
	check.Equal(t, []byte{1, 2, 3}, signals.AppInstallSignals)
}

func TestBuyerInput_MarshalRoundTrip(t *testing.T) {
	message := buildMessage(
		[]core.CandidateRecord{newCandidate(buyerA, "one", 2), newCandidate(buyerA, "two", 1)},
		NewProtectedAppSignals(signalBlob(buyerA, 40)),
	)

	encoded, err := message.Marshal()
	assert.NoError(t, err)

	again, err := message.Marshal()
	assert.NoError(t, err)
	check.True(t, bytes.Equal(encoded, again))

	decoded, err := UnmarshalBuyerInput(encoded)
	assert.NoError(t, err)
	check.Equal(t, message, decoded)
}

func TestBuyerInput_IsEmpty(t *testing.T) {
	check.True(t, (&BuyerInput{}).IsEmpty())
	check.False(t, (&BuyerInput{CustomAudiences: []CustomAudience{{Name: "x"}}}).IsEmpty())
	check.False(t, (&BuyerInput{ProtectedAppSignals: &ProtectedAppSignals{AppInstallSignals: []byte{1}}}).IsEmpty())
}

func TestGroupByBuyer_PriorityOrder(t *testing.T) {
	grouped := groupByBuyer([]core.CandidateRecord{
		newCandidate(buyerA, "low", 1),
		newCandidate(buyerB, "only", 5),
		newCandidate(buyerA, "high", 9),
		newCandidate(buyerA, "tie-b", 4),
		newCandidate(buyerA, "tie-a", 4),
	}, func(buyer core.BuyerID) bool { return buyer == buyerA })

	check.Equal(t, 1, len(grouped))
	var got []string
	for _, candidate := range grouped[buyerA] {
		got = append(got, candidate.Name)
	}
	check.Equal(t, []string{"high", "tie-a", "tie-b", "low"}, got)
}
