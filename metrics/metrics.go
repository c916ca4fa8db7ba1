// Package metrics defines the fire-and-forget sink that payload assembly and
// bidding report coarse counters and timers to.
package metrics

import "time"

// Result classifies how a buyer-input generation call ended relative to its
// size budget.
type Result string

const (
	// ResultUnset is reported by strategies that do not enforce a budget.
	ResultUnset Result = "UNSET"

	// ResultWithinMax means the first assembly already fit the budget.
	ResultWithinMax Result = "PAYLOAD_WITHIN_REQUESTED_MAX"

	// ResultTruncated means candidates were dropped to approach the budget.
	ResultTruncated Result = "PAYLOAD_TRUNCATED_FOR_REQUESTED_MAX"

	// ResultOverMax means the best-effort result still exceeds the budget.
	ResultOverMax Result = "PAYLOAD_OVER_REQUESTED_MAX"

	// ResultError means generation failed before producing buyer inputs.
	ResultError Result = "ERROR"
)

// BuyerInputReport summarizes one buyer-input generation call.
type BuyerInputReport struct {
	StrategyVersion     int
	BuyerCount          int
	CandidateCount      int
	CompressedSizeBytes int
	Recalculations      int
	Latency             time.Duration
	Result              Result
}

// BiddingReport summarizes one per-buyer bidding run.
type BiddingReport struct {
	Buyer      string
	Candidates int
	Completed  int
	Cancelled  int
	Failed     int
	TimedOut   bool
	Latency    time.Duration
}

// Sink accepts reports. Implementations must not block the caller for long
// and never fail it.
type Sink interface {
	ReportBuyerInput(BuyerInputReport)
	ReportBidding(BiddingReport)
}

// Disabled returns a Sink that discards every report.
func Disabled() Sink { return disabled{} }

type disabled struct{}

func (disabled) ReportBuyerInput(BuyerInputReport) {}
func (disabled) ReportBidding(BiddingReport)       {}

// OrDisabled returns sink, or the disabled sink when sink is nil.
func OrDisabled(sink Sink) Sink {
	if sink == nil {
		return Disabled()
	}
	return sink
}
