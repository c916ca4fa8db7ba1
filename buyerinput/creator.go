// Package buyerinput turns per-buyer candidate records and signal blobs into
// compressed buyer inputs, optionally fitting them under a size budget.
package buyerinput

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
)

// Creator versions, reported through metrics.
const (
	VersionNoOptimization = 0
	VersionSellerMax      = 1
	VersionPerBuyerLimits = 2
)

// DefaultPerBuyerSignalsMaxSizeBytes caps a single buyer's encoded signals.
const DefaultPerBuyerSignalsMaxSizeBytes = 1024

// Creator assembles compressed buyer inputs. Buyers whose message would hold
// no candidates and no signal bytes are omitted from the result. Output is
// byte-identical for identical input and configuration.
type Creator interface {
	Create(candidates []core.CandidateRecord, signals map[core.BuyerID]core.SignalBlob, stats *Stats) (map[core.BuyerID]compression.CompressedData, error)
	Version() int
}

// groupByBuyer splits candidates per buyer, ordered by descending priority
// with ties broken by name. When keep is non-nil only buyers it accepts are
// returned.
func groupByBuyer(candidates []core.CandidateRecord, keep func(core.BuyerID) bool) map[core.BuyerID][]core.CandidateRecord {
	grouped := make(map[core.BuyerID][]core.CandidateRecord)
	for _, candidate := range candidates {
		if keep != nil && !keep(candidate.Buyer) {
			continue
		}
		grouped[candidate.Buyer] = append(grouped[candidate.Buyer], candidate)
	}
	for _, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority > list[j].Priority
			}
			return list[i].Name < list[j].Name
		})
	}
	return grouped
}

// buildMessage assembles one buyer's message from candidates and an optional
// signal blob.
func buildMessage(candidates []core.CandidateRecord, signals *ProtectedAppSignals) *BuyerInput {
	message := &BuyerInput{ProtectedAppSignals: signals}
	if len(candidates) > 0 {
		message.CustomAudiences = make([]CustomAudience, 0, len(candidates))
	}
	for _, candidate := range candidates {
		message.CustomAudiences = append(message.CustomAudiences, NewCustomAudience(candidate))
	}
	return message
}

// dropEmpty removes buyers whose message holds neither candidates nor signals.
func dropEmpty(messages map[core.BuyerID]*BuyerInput) {
	for buyer, message := range messages {
		if message.IsEmpty() {
			delete(messages, buyer)
		}
	}
}

// compressAll encodes and compresses every message concurrently. The result
// has exactly the keys of messages.
func compressAll(compressor compression.Compressor, messages map[core.BuyerID]*BuyerInput) (map[core.BuyerID]compression.CompressedData, error) {
	buyers := core.SortedBuyers(messages)
	results := make([]compression.CompressedData, len(buyers))

	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, buyer := range buyers {
		group.Go(func() error {
			compressed, err := compressMessage(compressor, messages[buyer])
			if err != nil {
				return fmt.Errorf("buyer %s: %w", buyer, err)
			}
			results[i] = compressed
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make(map[core.BuyerID]compression.CompressedData, len(buyers))
	for i, buyer := range buyers {
		out[buyer] = results[i]
	}
	return out, nil
}

func compressMessage(compressor compression.Compressor, message *BuyerInput) (compression.CompressedData, error) {
	encoded, err := message.Marshal()
	if err != nil {
		return compression.CompressedData{}, err
	}
	compressed, err := compressor.Compress(compression.NewUncompressedData(encoded))
	if err != nil {
		return compression.CompressedData{}, fmt.Errorf("compress buyer input: %w", err)
	}
	return compressed, nil
}
