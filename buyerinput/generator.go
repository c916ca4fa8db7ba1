package buyerinput

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

// CandidateFetcher supplies the eligible candidates and signal blobs for one
// payload. An empty buyers list means all buyers. Only candidates updated
// within freshness are returned when freshness is positive.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, buyers []core.BuyerID, freshness time.Duration) ([]core.CandidateRecord, map[core.BuyerID]core.SignalBlob, error)
}

// GeneratorConfig wires a Generator. Compressor and Fetcher are required.
type GeneratorConfig struct {
	Compressor compression.Compressor
	Fetcher    CandidateFetcher
	Sink       metrics.Sink
	Clock      clock.Clock
	Logger     *slog.Logger

	// Freshness limits candidates to those updated within this window.
	Freshness time.Duration

	// SellerMax configures the strategy used when optimizations are enabled
	// without an allow-list. Its MaxSizeBytes is replaced per call.
	SellerMax SellerMaxConfig

	PerBuyerSignalsMaxSizeBytes int
}

// Generator produces compressed buyer inputs for one payload, choosing the
// assembly strategy from the call's OptimizationContext.
type Generator struct {
	compressor compression.Compressor
	fetcher    CandidateFetcher
	sink       metrics.Sink
	clock      clock.Clock
	logger     *slog.Logger
	freshness  time.Duration
	sellerMax  SellerMaxConfig
	signalsMax int
}

// NewGenerator validates cfg.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Compressor == nil {
		return nil, fmt.Errorf("%w: nil compressor", core.ErrConfiguration)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("%w: nil candidate fetcher", core.ErrConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PerBuyerSignalsMaxSizeBytes <= 0 {
		cfg.PerBuyerSignalsMaxSizeBytes = DefaultPerBuyerSignalsMaxSizeBytes
	}

	// Reject a bad drop order at construction.
	probe := cfg.SellerMax
	probe.MaxSizeBytes = 0
	if _, err := NewSellerMaxCreator(cfg.Compressor, probe); err != nil {
		return nil, err
	}

	return &Generator{
		compressor: cfg.Compressor,
		fetcher:    cfg.Fetcher,
		sink:       metrics.OrDisabled(cfg.Sink),
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		freshness:  cfg.Freshness,
		sellerMax:  cfg.SellerMax,
		signalsMax: cfg.PerBuyerSignalsMaxSizeBytes,
	}, nil
}

// CompressionVersion is the version of the compressor applied to every
// buyer input.
func (g *Generator) CompressionVersion() uint8 { return g.compressor.Version() }

// CreatorFor selects the strategy for octx: no optimization when disabled,
// per-buyer limits when an allow-list is present, seller max otherwise.
func (g *Generator) CreatorFor(octx OptimizationContext) (Creator, error) {
	if !octx.Enabled() {
		return NewNoOptimizationCreator(g.compressor)
	}
	if len(octx.AllowList()) > 0 {
		return NewPerBuyerLimitsCreator(g.compressor, octx, g.signalsMax)
	}

	cfg := g.sellerMax
	cfg.MaxSizeBytes = octx.MaxBuyerInputSizeBytes()
	cfg.PerBuyerSignalsMaxSizeBytes = g.signalsMax
	return NewSellerMaxCreator(g.compressor, cfg)
}

// CreateCompressedBuyerInputs fetches candidates and assembles one compressed
// input per buyer. A report is sent to the metrics sink whether or not the
// call succeeds.
func (g *Generator) CreateCompressedBuyerInputs(ctx context.Context, octx OptimizationContext) (map[core.BuyerID]compression.CompressedData, error) {
	start := g.clock.Now()
	stats := &Stats{}

	creator, err := g.CreatorFor(octx)
	if err != nil {
		return nil, err
	}

	report := func(result metrics.Result) {
		g.sink.ReportBuyerInput(metrics.BuyerInputReport{
			StrategyVersion:     creator.Version(),
			BuyerCount:          stats.BuyerCount,
			CandidateCount:      stats.CandidateCount,
			CompressedSizeBytes: stats.CompressedSizeBytes,
			Recalculations:      stats.Recalculations,
			Latency:             g.clock.Now().Sub(start),
			Result:              result,
		})
	}

	var buyers []core.BuyerID
	if octx.Enabled() {
		buyers = octx.AllowList()
	}

	candidates, signals, err := g.fetcher.FetchCandidates(ctx, buyers, g.freshness)
	if err != nil {
		report(metrics.ResultError)
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	inputs, err := creator.Create(candidates, signals, stats)
	if err != nil {
		report(metrics.ResultError)
		return nil, fmt.Errorf("create buyer inputs (strategy %d): %w", creator.Version(), err)
	}

	g.logger.Debug("created buyer inputs",
		"strategy_version", creator.Version(),
		"buyers", stats.BuyerCount,
		"candidates", stats.CandidateCount,
		"compressed_bytes", stats.CompressedSizeBytes,
		"result", string(stats.Result),
	)
	report(stats.Result)
	return inputs, nil
}
