package buyerinput

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

// DropOrder selects which candidates the seller-max creator removes first
// when the payload is over budget.
type DropOrder string

const (
	// DropLowestPriority removes candidates in ascending priority across all
	// buyers. Ties drop the later buyer, then the later name, first.
	DropLowestPriority DropOrder = "lowest-priority"

	// DropRoundRobin removes each buyer's lowest-priority candidate in turn,
	// cycling buyers in ascending order.
	DropRoundRobin DropOrder = "round-robin"
)

// DefaultMaxRecalculations bounds how many times the seller-max creator
// recompresses after dropping candidates.
const DefaultMaxRecalculations = 10

// SellerMaxConfig parameterizes SellerMaxCreator. Zero values take defaults.
type SellerMaxConfig struct {
	MaxSizeBytes                int
	MaxRecalculations           int
	DropOrder                   DropOrder
	PerBuyerSignalsMaxSizeBytes int
}

// SellerMaxCreator compresses everything, then drops candidates and
// recompresses until the total fits the seller's budget or the
// recalculation cap is reached. Over-budget results are returned as they
// are; the formatter decides whether they fit.
type SellerMaxCreator struct {
	compressor compression.Compressor
	cfg        SellerMaxConfig
}

// NewSellerMaxCreator validates cfg and fills in defaults.
func NewSellerMaxCreator(compressor compression.Compressor, cfg SellerMaxConfig) (*SellerMaxCreator, error) {
	if compressor == nil {
		return nil, fmt.Errorf("%w: nil compressor", core.ErrConfiguration)
	}
	if cfg.MaxSizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative max size %d", core.ErrConfiguration, cfg.MaxSizeBytes)
	}
	if cfg.MaxRecalculations < 0 {
		return nil, fmt.Errorf("%w: negative max recalculations %d", core.ErrConfiguration, cfg.MaxRecalculations)
	}
	if cfg.MaxRecalculations == 0 {
		cfg.MaxRecalculations = DefaultMaxRecalculations
	}
	switch cfg.DropOrder {
	case "":
		cfg.DropOrder = DropLowestPriority
	case DropLowestPriority, DropRoundRobin:
	default:
		return nil, fmt.Errorf("%w: unknown drop order %q", core.ErrConfiguration, cfg.DropOrder)
	}
	if cfg.PerBuyerSignalsMaxSizeBytes <= 0 {
		cfg.PerBuyerSignalsMaxSizeBytes = DefaultPerBuyerSignalsMaxSizeBytes
	}
	return &SellerMaxCreator{compressor: compressor, cfg: cfg}, nil
}

func (c *SellerMaxCreator) Version() int { return VersionSellerMax }

func (c *SellerMaxCreator) Create(candidates []core.CandidateRecord, signals map[core.BuyerID]core.SignalBlob, stats *Stats) (map[core.BuyerID]compression.CompressedData, error) {
	budget := c.cfg.MaxSizeBytes
	if budget == 0 {
		stats.record(nil, nil)
		stats.setResult(metrics.ResultWithinMax, 0)
		return map[core.BuyerID]compression.CompressedData{}, nil
	}

	grouped := groupByBuyer(candidates, nil)
	appSignals := c.admitSignals(signals)

	plan := newDropPlan(grouped)
	for buyer := range appSignals {
		plan.addBuyer(buyer)
	}

	messages := plan.messages(appSignals)
	compressed, err := compressAll(c.compressor, messages)
	if err != nil {
		return nil, err
	}

	result := metrics.ResultWithinMax
	recalculations := 0
	for total := compression.TotalSize(compressed); total > budget; total = compression.TotalSize(compressed) {
		if recalculations >= c.cfg.MaxRecalculations || plan.kept() == 0 {
			result = metrics.ResultOverMax
			break
		}

		count := dropCount(plan.kept(), total-budget, total)
		var changed map[core.BuyerID]struct{}
		if c.cfg.DropOrder == DropRoundRobin {
			changed = plan.dropRoundRobin(count)
		} else {
			changed = plan.dropLowestPriority(count)
		}

		messages = plan.messages(appSignals)
		if err := recompress(c.compressor, messages, compressed, changed); err != nil {
			return nil, err
		}
		recalculations++
		result = metrics.ResultTruncated
	}

	stats.record(messages, compressed)
	stats.setResult(result, recalculations)
	return compressed, nil
}

// admitSignals keeps non-empty blobs no larger than the per-buyer cap. When
// the whole budget is no larger than the cap no signals are admitted.
func (c *SellerMaxCreator) admitSignals(signals map[core.BuyerID]core.SignalBlob) map[core.BuyerID]*ProtectedAppSignals {
	admitted := make(map[core.BuyerID]*ProtectedAppSignals, len(signals))
	if c.cfg.MaxSizeBytes <= c.cfg.PerBuyerSignalsMaxSizeBytes {
		return admitted
	}
	for buyer, blob := range signals {
		if len(blob.Payload) > c.cfg.PerBuyerSignalsMaxSizeBytes {
			continue
		}
		if appSignals := NewProtectedAppSignals(blob); appSignals != nil {
			admitted[buyer] = appSignals
		}
	}
	return admitted
}

// dropCount estimates how many candidates must go so the payload shrinks by
// overflow bytes, assuming every candidate costs the same. At least one is
// dropped per round.
func dropCount(kept, overflow, total int) int {
	if total <= 0 {
		return 1
	}
	count := (kept*overflow + total - 1) / total
	return max(count, 1)
}

// recompress refreshes compressed for the buyers in changed. Buyers whose
// message became empty are removed.
func recompress(compressor compression.Compressor, messages map[core.BuyerID]*BuyerInput, compressed map[core.BuyerID]compression.CompressedData, changed map[core.BuyerID]struct{}) error {
	pending := make(map[core.BuyerID]*BuyerInput, len(changed))
	for buyer := range changed {
		if message, ok := messages[buyer]; ok {
			pending[buyer] = message
		} else {
			delete(compressed, buyer)
		}
	}

	updated, err := compressAll(compressor, pending)
	if err != nil {
		return err
	}
	for buyer, data := range updated {
		compressed[buyer] = data
	}
	return nil
}

// dropPlan tracks how many of each buyer's priority-ordered candidates are
// still kept. Dropping always removes from the tail.
type dropPlan struct {
	buyers     []core.BuyerID
	candidates map[core.BuyerID][]core.CandidateRecord
	keep       map[core.BuyerID]int
	cursor     int
}

func newDropPlan(grouped map[core.BuyerID][]core.CandidateRecord) *dropPlan {
	plan := &dropPlan{
		candidates: grouped,
		keep:       make(map[core.BuyerID]int, len(grouped)),
	}
	for buyer, list := range grouped {
		plan.keep[buyer] = len(list)
	}
	plan.buyers = core.SortedBuyers(grouped)
	return plan
}

func (p *dropPlan) addBuyer(buyer core.BuyerID) {
	if _, ok := p.keep[buyer]; ok {
		return
	}
	p.keep[buyer] = 0
	p.buyers = core.SortedBuyers(p.keep)
}

func (p *dropPlan) kept() int {
	total := 0
	for _, n := range p.keep {
		total += n
	}
	return total
}

// messages builds the current message per buyer, omitting empty ones.
func (p *dropPlan) messages(signals map[core.BuyerID]*ProtectedAppSignals) map[core.BuyerID]*BuyerInput {
	messages := make(map[core.BuyerID]*BuyerInput, len(p.buyers))
	for _, buyer := range p.buyers {
		message := buildMessage(p.candidates[buyer][:p.keep[buyer]], signals[buyer])
		if !message.IsEmpty() {
			messages[buyer] = message
		}
	}
	return messages
}

func (p *dropPlan) dropLowestPriority(count int) map[core.BuyerID]struct{} {
	changed := make(map[core.BuyerID]struct{})
	for ; count > 0; count-- {
		var victim core.BuyerID
		found := false
		for _, buyer := range p.buyers {
			n := p.keep[buyer]
			if n == 0 {
				continue
			}
			if !found || p.dropsBefore(buyer, victim) {
				victim, found = buyer, true
			}
		}
		if !found {
			break
		}
		p.keep[victim]--
		changed[victim] = struct{}{}
	}
	return changed
}

// dropsBefore reports whether a's tail candidate should be dropped before b's.
func (p *dropPlan) dropsBefore(a, b core.BuyerID) bool {
	tailA := p.candidates[a][p.keep[a]-1]
	tailB := p.candidates[b][p.keep[b]-1]
	if tailA.Priority != tailB.Priority {
		return tailA.Priority < tailB.Priority
	}
	if a != b {
		return a > b
	}
	return tailA.Name > tailB.Name
}

func (p *dropPlan) dropRoundRobin(count int) map[core.BuyerID]struct{} {
	changed := make(map[core.BuyerID]struct{})
	for count > 0 && p.kept() > 0 {
		buyer := p.buyers[p.cursor%len(p.buyers)]
		p.cursor++
		if p.keep[buyer] == 0 {
			continue
		}
		p.keep[buyer]--
		changed[buyer] = struct{}{}
		count--
	}
	return changed
}
