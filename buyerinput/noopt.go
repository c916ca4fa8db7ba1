package buyerinput

import (
	"fmt"

	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

// NoOptimizationCreator puts every candidate and every signal blob into the
// payload with no size control.
type NoOptimizationCreator struct {
	compressor compression.Compressor
}

// NewNoOptimizationCreator returns a creator compressing with compressor.
func NewNoOptimizationCreator(compressor compression.Compressor) (*NoOptimizationCreator, error) {
	if compressor == nil {
		return nil, fmt.Errorf("%w: nil compressor", core.ErrConfiguration)
	}
	return &NoOptimizationCreator{compressor: compressor}, nil
}

func (c *NoOptimizationCreator) Version() int { return VersionNoOptimization }

func (c *NoOptimizationCreator) Create(candidates []core.CandidateRecord, signals map[core.BuyerID]core.SignalBlob, stats *Stats) (map[core.BuyerID]compression.CompressedData, error) {
	grouped := groupByBuyer(candidates, nil)

	messages := make(map[core.BuyerID]*BuyerInput, len(grouped)+len(signals))
	for buyer, list := range grouped {
		messages[buyer] = buildMessage(list, nil)
	}
	for buyer, blob := range signals {
		appSignals := NewProtectedAppSignals(blob)
		if appSignals == nil {
			continue
		}
		if messages[buyer] == nil {
			messages[buyer] = &BuyerInput{}
		}
		messages[buyer].ProtectedAppSignals = appSignals
	}
	dropEmpty(messages)

	compressed, err := compressAll(c.compressor, messages)
	if err != nil {
		return nil, err
	}
	stats.record(messages, compressed)
	stats.setResult(metrics.ResultUnset, 0)
	return compressed, nil
}
