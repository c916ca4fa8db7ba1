package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/core"
)

// fixtureFile is the on-disk layout of a candidate fixture.
type fixtureFile struct {
	Candidates []core.CandidateRecord `yaml:"candidates"`
	Signals    []fixtureSignal        `yaml:"signals"`
}

type fixtureSignal struct {
	Buyer   core.BuyerID `yaml:"buyer"`
	Version int          `yaml:"version"`
	// PayloadBase64 is the standard base64 encoding of the signal bytes.
	PayloadBase64 string `yaml:"payload_base64"`
}

// FixtureFetcher serves candidates and signals loaded once from a YAML file.
type FixtureFetcher struct {
	candidates []core.CandidateRecord
	signals    map[core.BuyerID]core.SignalBlob
	clock      clock.Clock
}

// LoadFixtureFetcher reads a fixture file.
func LoadFixtureFetcher(path string, clk clock.Clock) (*FixtureFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data, clk)
}

// ParseFixture decodes fixture YAML. Every candidate needs a buyer and a
// name, and each buyer may carry at most one signal blob.
func ParseFixture(data []byte, clk clock.Clock) (*FixtureFetcher, error) {
	if clk == nil {
		clk = clock.Real()
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	for i, candidate := range file.Candidates {
		if candidate.Buyer == "" || candidate.Name == "" {
			return nil, fmt.Errorf("candidate %d: buyer and name are required", i)
		}
	}

	signals := make(map[core.BuyerID]core.SignalBlob, len(file.Signals))
	for _, signal := range file.Signals {
		if _, dup := signals[signal.Buyer]; dup {
			return nil, fmt.Errorf("duplicate signals for buyer %s", signal.Buyer)
		}
		payload, err := base64.StdEncoding.DecodeString(signal.PayloadBase64)
		if err != nil {
			return nil, fmt.Errorf("signals for buyer %s: decode payload: %w", signal.Buyer, err)
		}
		signals[signal.Buyer] = core.SignalBlob{
			Buyer:   signal.Buyer,
			Version: signal.Version,
			Payload: payload,
		}
	}

	return &FixtureFetcher{
		candidates: file.Candidates,
		signals:    signals,
		clock:      clk,
	}, nil
}

// FetchCandidates returns the active candidates of the requested buyers,
// all buyers when buyers is empty. With a positive freshness, candidates
// last updated longer ago than freshness are skipped.
func (f *FixtureFetcher) FetchCandidates(ctx context.Context, buyers []core.BuyerID, freshness time.Duration) ([]core.CandidateRecord, map[core.BuyerID]core.SignalBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	now := f.clock.Now()
	wanted := func(buyer core.BuyerID) bool {
		return len(buyers) == 0 || slices.Contains(buyers, buyer)
	}

	var candidates []core.CandidateRecord
	for _, candidate := range f.candidates {
		if !wanted(candidate.Buyer) || !candidate.IsActive(now) {
			continue
		}
		if freshness > 0 && now.Sub(candidate.LastUpdated) > freshness {
			continue
		}
		candidates = append(candidates, candidate)
	}

	signals := make(map[core.BuyerID]core.SignalBlob)
	for buyer, blob := range f.signals {
		if wanted(buyer) {
			blob.Payload = append([]byte(nil), blob.Payload...)
			signals[buyer] = blob
		}
	}
	return candidates, signals, nil
}
