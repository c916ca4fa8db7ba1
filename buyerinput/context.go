package buyerinput

import (
	"fmt"
	"maps"

	"github.com/cloudx-io/protectedauction/core"
)

// OptimizationContext carries the size budget and buyer allow-list for one
// payload-generation call. When optimizations are disabled the budget is
// ignored.
type OptimizationContext struct {
	enabled         bool
	maxSizeBytes    int
	allowList       map[core.BuyerID]struct{}
	perBuyerTargets map[core.BuyerID]int
}

// DisabledOptimizations returns a context that turns size control off.
func DisabledOptimizations() OptimizationContext {
	return OptimizationContext{}
}

// NewOptimizationContext validates and copies its inputs. Negative budgets
// and targets fail with core.ErrConfiguration.
func NewOptimizationContext(maxSizeBytes int, allowList []core.BuyerID, perBuyerTargets map[core.BuyerID]int) (OptimizationContext, error) {
	if maxSizeBytes < 0 {
		return OptimizationContext{}, fmt.Errorf("%w: negative max buyer input size %d",
			core.ErrConfiguration, maxSizeBytes)
	}

	ctx := OptimizationContext{
		enabled:         true,
		maxSizeBytes:    maxSizeBytes,
		allowList:       make(map[core.BuyerID]struct{}, len(allowList)),
		perBuyerTargets: make(map[core.BuyerID]int, len(perBuyerTargets)),
	}
	for _, buyer := range allowList {
		ctx.allowList[buyer] = struct{}{}
	}
	for buyer, target := range perBuyerTargets {
		if target < 0 {
			return OptimizationContext{}, fmt.Errorf("%w: negative target size %d for buyer %s",
				core.ErrConfiguration, target, buyer)
		}
		ctx.perBuyerTargets[buyer] = target
	}
	return ctx, nil
}

func (c OptimizationContext) Enabled() bool { return c.enabled }

// MaxBuyerInputSizeBytes returns the budget, or 0 when optimizations are
// disabled.
func (c OptimizationContext) MaxBuyerInputSizeBytes() int {
	if !c.enabled {
		return 0
	}
	return c.maxSizeBytes
}

// AllowList returns the allow-listed buyers in ascending order.
func (c OptimizationContext) AllowList() []core.BuyerID {
	return core.SortedBuyers(c.allowList)
}

// IsAllowed reports whether buyer is on the allow-list.
func (c OptimizationContext) IsAllowed(buyer core.BuyerID) bool {
	_, ok := c.allowList[buyer]
	return ok
}

// PerBuyerTargets returns a copy of the configured per-buyer target sizes.
func (c OptimizationContext) PerBuyerTargets() map[core.BuyerID]int {
	return maps.Clone(c.perBuyerTargets)
}
