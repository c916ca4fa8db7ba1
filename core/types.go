package core

import (
	"sort"
	"time"
)

// BuyerID identifies an ad tech buyer participating in the auction.
type BuyerID string

// AdRecord is a single ad belonging to a candidate.
type AdRecord struct {
	RenderID      string  `json:"render_id" yaml:"render_id"`
	RenderURI     string  `json:"render_uri" yaml:"render_uri"`
	Metadata      string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	AdCounterKeys []int32 `json:"ad_counter_keys,omitempty" yaml:"ad_counter_keys,omitempty"`
}

// CandidateRecord is one custom audience eligible for bidding and for
// inclusion in a buyer's input.
type CandidateRecord struct {
	Owner              string     `json:"owner" yaml:"owner"`
	Buyer              BuyerID    `json:"buyer" yaml:"buyer"`
	Name               string     `json:"name" yaml:"name"`
	Priority           float64    `json:"priority" yaml:"priority"`
	ActivationTime     time.Time  `json:"activation_time" yaml:"activation_time"`
	ExpirationTime     time.Time  `json:"expiration_time" yaml:"expiration_time"`
	LastUpdated        time.Time  `json:"last_updated" yaml:"last_updated"`
	UserBiddingSignals string     `json:"user_bidding_signals,omitempty" yaml:"user_bidding_signals,omitempty"`
	TrustedBiddingKeys []string   `json:"trusted_bidding_keys,omitempty" yaml:"trusted_bidding_keys,omitempty"`
	BiddingLogicURL    string     `json:"bidding_logic_url,omitempty" yaml:"bidding_logic_url,omitempty"`
	Ads                []AdRecord `json:"ads,omitempty" yaml:"ads,omitempty"`
}

// IsActive reports whether the candidate is activated and not yet expired at now.
// A zero ExpirationTime never expires.
func (c CandidateRecord) IsActive(now time.Time) bool {
	if !c.ActivationTime.IsZero() && now.Before(c.ActivationTime) {
		return false
	}
	if !c.ExpirationTime.IsZero() && !now.Before(c.ExpirationTime) {
		return false
	}
	return true
}

// SignalBlob is a buyer's encoded protected app signals.
type SignalBlob struct {
	Buyer   BuyerID `json:"buyer" yaml:"buyer"`
	Version int     `json:"version" yaml:"version"`
	Payload []byte  `json:"payload" yaml:"payload"`
}

// AuctionSignals carries the auction-wide inputs handed to every bidding call.
type AuctionSignals struct {
	AuctionSignals string             `json:"auction_signals,omitempty"`
	SellerSignals  string             `json:"seller_signals,omitempty"`
	PerBuyer       map[BuyerID]string `json:"per_buyer_signals,omitempty"`
}

// BidOutcome is the result of running one candidate's bidding logic.
type BidOutcome struct {
	Candidate CandidateRecord `json:"candidate"`
	RenderURI string          `json:"render_uri"`
	Bid       float64         `json:"bid"`
	Currency  string          `json:"currency,omitempty"`
}

// SortedBuyers returns the keys of a buyer-keyed map in ascending order.
// Payload assembly iterates buyers in this order so output is deterministic.
func SortedBuyers[V any](m map[BuyerID]V) []BuyerID {
	buyers := make([]BuyerID, 0, len(m))
	for buyer := range m {
		buyers = append(buyers, buyer)
	}
	sort.Slice(buyers, func(i, j int) bool { return buyers[i] < buyers[j] })
	return buyers
}
