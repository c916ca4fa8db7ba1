package buyerinput

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/protectedauction/core"
)

func TestDisabledOptimizations_IgnoresBudget(t *testing.T) {
	octx := DisabledOptimizations()
	check.False(t, octx.Enabled())
	check.Equal(t, 0, octx.MaxBuyerInputSizeBytes())
	check.Equal(t, 0, len(octx.AllowList()))
}

func TestNewOptimizationContext(t *testing.T) {
	targets := map[core.BuyerID]int{buyerA: 100}
	octx, err := NewOptimizationContext(2048, []core.BuyerID{buyerB, buyerA, buyerB}, targets)
	assert.NoError(t, err)

	check.True(t, octx.Enabled())
	check.Equal(t, 2048, octx.MaxBuyerInputSizeBytes())
	check.Equal(t, []core.BuyerID{buyerA, buyerB}, octx.AllowList())
	check.True(t, octx.IsAllowed(buyerA))
	check.False(t, octx.IsAllowed(buyerC))

	targets[buyerA] = 1
	got := octx.PerBuyerTargets()
	check.Equal(t, 100, got[buyerA])
	got[buyerA] = 2
	check.Equal(t, 100, octx.PerBuyerTargets()[buyerA])
}

func TestNewOptimizationContext_Invalid(t *testing.T) {
	_, err := NewOptimizationContext(-1, nil, nil)
	check.True(t, errors.Is(err, core.ErrConfiguration))

	_, err = NewOptimizationContext(10, nil, map[core.BuyerID]int{buyerA: -5})
	check.True(t, errors.Is(err, core.ErrConfiguration))
}
