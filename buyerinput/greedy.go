package buyerinput

import (
	"fmt"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

const (
	// minimumCandidateSizeBytes is the smallest space worth trying to fill
	// with another candidate.
	minimumCandidateSizeBytes = 64

	// byteCeiling rounds truncated size estimates up.
	byteCeiling = 1
)

// payloadUtilizationGoal is the share of a limit the estimator aims to fill,
// leaving headroom for estimation error.
var payloadUtilizationGoal = decimal.RequireFromString("0.90")

// PerBuyerLimitsCreator splits the budget across allow-listed buyers and
// fills each buyer's share greedily in priority order using a per-buyer
// compression ratio estimate. If the compressed result still exceeds the
// budget it truncates once and recompresses; it never loops.
type PerBuyerLimitsCreator struct {
	compressor compression.Compressor
	budget     int
	buyers     []core.BuyerID
	allowed    map[core.BuyerID]struct{}
	limits     map[core.BuyerID]int
	signalsMax int
}

// NewPerBuyerLimitsCreator derives per-buyer limits from octx. It requires
// optimizations to be enabled and a non-empty allow-list.
func NewPerBuyerLimitsCreator(compressor compression.Compressor, octx OptimizationContext, perBuyerSignalsMaxSizeBytes int) (*PerBuyerLimitsCreator, error) {
	if compressor == nil {
		return nil, fmt.Errorf("%w: nil compressor", core.ErrConfiguration)
	}
	if !octx.Enabled() {
		return nil, fmt.Errorf("%w: per-buyer limits need optimizations enabled", core.ErrConfiguration)
	}
	buyers := octx.AllowList()
	if len(buyers) == 0 {
		return nil, fmt.Errorf("%w: per-buyer limits need a buyer allow-list", core.ErrConfiguration)
	}
	if perBuyerSignalsMaxSizeBytes <= 0 {
		perBuyerSignalsMaxSizeBytes = DefaultPerBuyerSignalsMaxSizeBytes
	}

	allowed := make(map[core.BuyerID]struct{}, len(buyers))
	for _, buyer := range buyers {
		allowed[buyer] = struct{}{}
	}

	return &PerBuyerLimitsCreator{
		compressor: compressor,
		budget:     octx.MaxBuyerInputSizeBytes(),
		buyers:     buyers,
		allowed:    allowed,
		limits:     perBuyerLimits(buyers, octx.PerBuyerTargets(), octx.MaxBuyerInputSizeBytes()),
		signalsMax: perBuyerSignalsMaxSizeBytes,
	}, nil
}

func (c *PerBuyerLimitsCreator) Version() int { return VersionPerBuyerLimits }

func (c *PerBuyerLimitsCreator) isAllowed(buyer core.BuyerID) bool {
	_, ok := c.allowed[buyer]
	return ok
}

// perBuyerLimits returns each buyer's target when the targets fit the budget
// and a proportional share of the budget otherwise. Buyers without a target
// ask for an equal share.
func perBuyerLimits(buyers []core.BuyerID, targets map[core.BuyerID]int, budget int) map[core.BuyerID]int {
	share := 0
	if len(buyers) > 0 {
		share = budget / len(buyers)
	}

	limits := make(map[core.BuyerID]int, len(buyers))
	sum := 0
	for _, buyer := range buyers {
		target, ok := targets[buyer]
		if !ok {
			target = share
		}
		limits[buyer] = target
		sum += target
	}
	if sum <= budget {
		return limits
	}

	total := decimal.NewFromInt(int64(budget))
	denominator := decimal.NewFromInt(int64(sum))
	for buyer, target := range limits {
		quotient, _ := decimal.NewFromInt(int64(target)).Mul(total).QuoRem(denominator, 0)
		limits[buyer] = int(quotient.IntPart())
	}
	return limits
}

func (c *PerBuyerLimitsCreator) Create(candidates []core.CandidateRecord, signals map[core.BuyerID]core.SignalBlob, stats *Stats) (map[core.BuyerID]compression.CompressedData, error) {
	call := &greedyCall{
		creator:  c,
		grouped:  groupByBuyer(candidates, c.isAllowed),
		signals:  c.admitSignals(signals),
		limits:   maps.Clone(c.limits),
		messages: make(map[core.BuyerID]*BuyerInput, len(c.buyers)),
		sizes:    make(map[core.BuyerID][]int, len(c.buyers)),
	}
	for _, buyer := range c.buyers {
		call.messages[buyer] = &BuyerInput{}
	}

	if err := call.estimateRatios(); err != nil {
		return nil, err
	}
	call.addSignals()
	if err := call.addCandidates(); err != nil {
		return nil, err
	}
	dropEmpty(call.messages)

	compressed, err := compressAll(c.compressor, call.messages)
	if err != nil {
		return nil, err
	}

	result := metrics.ResultWithinMax
	recalculations := 0
	if total := compression.TotalSize(compressed); total > c.budget {
		call.truncate(total - c.budget)
		compressed, err = compressAll(c.compressor, call.messages)
		if err != nil {
			return nil, err
		}
		recalculations = 1
		result = metrics.ResultTruncated
		if compression.TotalSize(compressed) > c.budget {
			result = metrics.ResultOverMax
		}
	}

	stats.record(call.messages, compressed)
	stats.setResult(result, recalculations)
	return compressed, nil
}

// admitSignals keeps non-empty blobs of allow-listed buyers that fit the
// per-buyer signals cap.
func (c *PerBuyerLimitsCreator) admitSignals(signals map[core.BuyerID]core.SignalBlob) map[core.BuyerID]*ProtectedAppSignals {
	admitted := make(map[core.BuyerID]*ProtectedAppSignals)
	for buyer, blob := range signals {
		if !c.isAllowed(buyer) || len(blob.Payload) > c.signalsMax {
			continue
		}
		if appSignals := NewProtectedAppSignals(blob); appSignals != nil {
			admitted[buyer] = appSignals
		}
	}
	return admitted
}

// greedyCall is the state of one PerBuyerLimitsCreator.Create call.
type greedyCall struct {
	creator  *PerBuyerLimitsCreator
	grouped  map[core.BuyerID][]core.CandidateRecord
	signals  map[core.BuyerID]*ProtectedAppSignals
	ratios   map[core.BuyerID]decimal.Decimal
	limits   map[core.BuyerID]int
	messages map[core.BuyerID]*BuyerInput
	// sizes holds the estimated compressed size of each custom audience in
	// messages, index for index.
	sizes map[core.BuyerID][]int
	used  int
}

// estimateRatios compresses each buyer's complete message once and records
// compressed/uncompressed as that buyer's ratio.
func (g *greedyCall) estimateRatios() error {
	full := make(map[core.BuyerID]*BuyerInput, len(g.creator.buyers))
	uncompressed := make(map[core.BuyerID]int, len(g.creator.buyers))
	g.ratios = make(map[core.BuyerID]decimal.Decimal, len(g.creator.buyers))

	for _, buyer := range g.creator.buyers {
		message := buildMessage(g.grouped[buyer], g.signals[buyer])
		if message.IsEmpty() {
			g.ratios[buyer] = decimal.NewFromInt(1)
			continue
		}
		encoded, err := message.Marshal()
		if err != nil {
			return err
		}
		full[buyer] = message
		uncompressed[buyer] = len(encoded)
	}

	compressed, err := compressAll(g.creator.compressor, full)
	if err != nil {
		return err
	}
	for buyer, data := range compressed {
		g.ratios[buyer] = decimal.NewFromInt(int64(data.Len())).Div(decimal.NewFromInt(int64(uncompressed[buyer])))
	}
	return nil
}

func (g *greedyCall) estimate(buyer core.BuyerID, uncompressedSize int) int {
	return int(decimal.NewFromInt(int64(uncompressedSize)).Mul(g.ratios[buyer]).IntPart()) + byteCeiling
}

// addSignals adds each buyer's signals when its limit can hold the signals
// cap, charging the estimated compressed size against that limit.
func (g *greedyCall) addSignals() {
	if g.creator.budget <= g.creator.signalsMax {
		return
	}
	for _, buyer := range core.SortedBuyers(g.signals) {
		if g.limits[buyer] < g.creator.signalsMax {
			continue
		}
		appSignals := g.signals[buyer]
		g.messages[buyer].ProtectedAppSignals = appSignals

		cost := g.estimate(buyer, len(appSignals.AppInstallSignals))
		g.limits[buyer] -= cost
		g.used += cost
	}
}

// addCandidates fills each buyer up to the utilization goal of its limit,
// then spends what is left of the global goal on the leftovers, taking one
// candidate from each buyer in turn.
func (g *greedyCall) addCandidates() error {
	budget := g.creator.budget
	if budget <= 0 {
		return nil
	}

	remaining := make(map[core.BuyerID][]core.CandidateRecord, len(g.creator.buyers))
	for _, buyer := range g.creator.buyers {
		list := g.grouped[buyer]
		limit := utilizationGoal(g.limits[buyer])

		for i, candidate := range list {
			ca := NewCustomAudience(candidate)
			size, err := encodedSize(ca)
			if err != nil {
				return err
			}
			cost := g.estimate(buyer, size)

			if limit >= cost && g.used+cost <= budget {
				g.add(buyer, ca, cost)
				limit -= cost
				continue
			}
			if limit > minimumCandidateSizeBytes {
				remaining[buyer] = append(remaining[buyer], candidate)
				continue
			}
			remaining[buyer] = append(remaining[buyer], list[i:]...)
			break
		}
	}

	goal := utilizationGoal(budget)
	if g.used > goal {
		return nil
	}
	for _, candidate := range interleave(g.creator.buyers, remaining) {
		ca := NewCustomAudience(candidate)
		size, err := encodedSize(ca)
		if err != nil {
			return err
		}
		cost := g.estimate(candidate.Buyer, size)

		if g.used+cost < goal {
			g.add(candidate.Buyer, ca, cost)
		} else if g.used >= goal-minimumCandidateSizeBytes {
			break
		}
	}
	return nil
}

func (g *greedyCall) add(buyer core.BuyerID, ca CustomAudience, cost int) {
	message := g.messages[buyer]
	message.CustomAudiences = append(message.CustomAudiences, ca)
	g.sizes[buyer] = append(g.sizes[buyer], cost)
	g.used += cost
}

// truncate removes the most recently added custom audience of each buyer in
// turn until the estimated overflow, padded by the utilization headroom, is
// gone. Every buyer keeps at least one custom audience.
func (g *greedyCall) truncate(overflow int) {
	headroom := decimal.NewFromInt(int64(g.creator.budget)).Mul(decimal.NewFromInt(1).Sub(payloadUtilizationGoal))
	remaining := overflow + int(headroom.IntPart()) + byteCeiling

	buyers := core.SortedBuyers(g.messages)
	for remaining > 0 {
		progress := false
		for _, buyer := range buyers {
			if remaining <= 0 {
				break
			}
			message := g.messages[buyer]
			last := len(message.CustomAudiences) - 1
			if last < 1 {
				continue
			}
			message.CustomAudiences = message.CustomAudiences[:last]
			remaining -= g.sizes[buyer][last]
			g.sizes[buyer] = g.sizes[buyer][:last]
			progress = true
		}
		if !progress {
			return
		}
	}
}

func utilizationGoal(size int) int {
	return int(decimal.NewFromInt(int64(size)).Mul(payloadUtilizationGoal).IntPart())
}

// interleave orders leftovers as the first of every buyer, then the second
// of every buyer, and so on.
func interleave(buyers []core.BuyerID, perBuyer map[core.BuyerID][]core.CandidateRecord) []core.CandidateRecord {
	var out []core.CandidateRecord
	for i := 0; ; i++ {
		added := false
		for _, buyer := range buyers {
			if i < len(perBuyer[buyer]) {
				out = append(out, perBuyer[buyer][i])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}
