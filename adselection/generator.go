// Package adselection assembles the complete, formatted auction payload for
// one ad-selection request.
package adselection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/format"
)

// BuyerInputSource produces compressed buyer inputs for one request.
type BuyerInputSource interface {
	CreateCompressedBuyerInputs(ctx context.Context, octx buyerinput.OptimizationContext) (map[core.BuyerID]compression.CompressedData, error)
	CompressionVersion() uint8
}

// Config wires a PayloadGenerator. BuyerInputs and Formatter are required;
// Sealer is optional.
type Config struct {
	BuyerInputs BuyerInputSource
	Formatter   format.Formatter
	Sealer      *envelope.Sealer
	Clock       clock.Clock
	Logger      *slog.Logger

	// NewGenerationID defaults to uuid.NewRandom.
	NewGenerationID func() (uuid.UUID, error)
}

// Request is one ad-selection data request.
type Request struct {
	PublisherName        string
	EnableDebugReporting bool
	Optimization         buyerinput.OptimizationContext
}

// Result is the payload produced for a Request.
type Result struct {
	GenerationID uuid.UUID
	Payload      format.FormattedData
	// Sealed is the COSE_Sign1 envelope around Payload, or nil without a
	// sealer.
	Sealed []byte
	// Digest is the BLAKE3 digest of the bytes to send: Sealed when
	// present, Payload otherwise.
	Digest         string
	BuyerCount     int
	BuyerDigests   map[core.BuyerID]string
	ProcessingTime time.Duration
}

// Bytes returns what should be sent to the auction coordinator.
func (r *Result) Bytes() []byte {
	if r.Sealed != nil {
		return append([]byte(nil), r.Sealed...)
	}
	return r.Payload.Bytes()
}

// PayloadGenerator runs buyer-input generation, composition, formatting and
// optional sealing.
type PayloadGenerator struct {
	buyerInputs     BuyerInputSource
	formatter       format.Formatter
	sealer          *envelope.Sealer
	clock           clock.Clock
	logger          *slog.Logger
	newGenerationID func() (uuid.UUID, error)
}

// NewPayloadGenerator validates cfg.
func NewPayloadGenerator(cfg Config) (*PayloadGenerator, error) {
	if cfg.BuyerInputs == nil {
		return nil, fmt.Errorf("%w: nil buyer input source", core.ErrConfiguration)
	}
	if cfg.Formatter == nil {
		return nil, fmt.Errorf("%w: nil formatter", core.ErrConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewGenerationID == nil {
		cfg.NewGenerationID = uuid.NewRandom
	}
	return &PayloadGenerator{
		buyerInputs:     cfg.BuyerInputs,
		formatter:       cfg.Formatter,
		sealer:          cfg.Sealer,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		newGenerationID: cfg.NewGenerationID,
	}, nil
}

// GetAdSelectionData builds the payload for req. core.ErrPayloadTooLarge is
// returned when the assembled payload fits no allowed size.
func (g *PayloadGenerator) GetAdSelectionData(ctx context.Context, req Request) (*Result, error) {
	start := g.clock.Now()

	generationID, err := g.newGenerationID()
	if err != nil {
		return nil, fmt.Errorf("generate generation id: %w", err)
	}

	inputs, err := g.buyerInputs.CreateCompressedBuyerInputs(ctx, req.Optimization)
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", generationID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := NewProtectedAudienceInput(inputs, req.PublisherName, req.EnableDebugReporting, generationID.String())
	encoded, err := input.Marshal()
	if err != nil {
		return nil, err
	}

	payload, err := g.formatter.Apply(format.NewUnformattedData(encoded), g.buyerInputs.CompressionVersion())
	if err != nil {
		g.logger.Warn("format payload failed",
			"generation_id", generationID.String(),
			"buyers", len(inputs),
			"unformatted_bytes", len(encoded),
			"error", err,
		)
		return nil, fmt.Errorf("generation %s: format payload: %w", generationID, err)
	}

	result := &Result{
		GenerationID: generationID,
		Payload:      payload,
		BuyerCount:   len(inputs),
		BuyerDigests: core.ComputeBuyerInputDigests(input.BuyerInput),
	}
	if g.sealer != nil {
		result.Sealed, err = g.sealer.Seal(payload)
		if err != nil {
			return nil, fmt.Errorf("generation %s: seal payload: %w", generationID, err)
		}
	}
	result.Digest = core.ComputePayloadDigest(result.Bytes())
	result.ProcessingTime = g.clock.Now().Sub(start)

	g.logger.Info("ad selection data generated",
		"generation_id", generationID.String(),
		"buyers", result.BuyerCount,
		"unformatted_bytes", len(encoded),
		"payload_bytes", payload.Len(),
		"sealed", result.Sealed != nil,
		"digest", result.Digest,
	)
	return result, nil
}
