package buyerinput

import (
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

// Stats accumulates what one Create call produced. Each call gets its own
// Stats so creators stay safe for concurrent reuse.
type Stats struct {
	BuyerCount          int
	CandidateCount      int
	CompressedSizeBytes int
	Recalculations      int
	Result              metrics.Result
}

func (s *Stats) record(messages map[core.BuyerID]*BuyerInput, compressed map[core.BuyerID]compression.CompressedData) {
	if s == nil {
		return
	}
	s.BuyerCount = len(compressed)
	s.CandidateCount = 0
	for buyer := range compressed {
		s.CandidateCount += len(messages[buyer].CustomAudiences)
	}
	s.CompressedSizeBytes = compression.TotalSize(compressed)
}

func (s *Stats) setResult(result metrics.Result, recalculations int) {
	if s == nil {
		return
	}
	s.Result = result
	s.Recalculations = recalculations
}
