package bidding

import (
	"sync"

	"github.com/cloudx-io/protectedauction/core"
)

// collector gathers outcomes by candidate index until it is closed. Anything
// recorded after close is discarded.
type collector struct {
	mu       sync.Mutex
	closed   bool
	outcomes []*core.BidOutcome
	finished int
	failed   int
	noBid    int
}

func newCollector(n int) *collector {
	return &collector{outcomes: make([]*core.BidOutcome, n)}
}

func (c *collector) success(index int, outcome core.BidOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.outcomes[index] = &outcome
	c.finished++
}

func (c *collector) failure(noBid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.finished++
	if noBid {
		c.noBid++
	} else {
		c.failed++
	}
}

// close stops accepting results. It reports whether this call closed it.
func (c *collector) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// result snapshots the collected outcomes in candidate order.
func (c *collector) result(state State) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := &Result{
		State:     state,
		Outcomes:  make([]core.BidOutcome, 0, c.finished),
		Failed:    c.failed,
		NoBid:     c.noBid,
		Cancelled: len(c.outcomes) - c.finished,
	}
	for _, outcome := range c.outcomes {
		if outcome != nil {
			result.Outcomes = append(result.Outcomes, *outcome)
		}
	}
	result.Completed = len(result.Outcomes)
	return result
}
