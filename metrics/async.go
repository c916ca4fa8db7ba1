package metrics

import (
	"sync"
	"sync/atomic"
)

// DefaultAsyncBuffer is the queue depth used when NewAsync is given a
// non-positive buffer size.
const DefaultAsyncBuffer = 256

// Async forwards reports to another sink from a background goroutine.
// Reports are dropped, never queued unboundedly, when the buffer is full.
type Async struct {
	sink    Sink
	events  chan func(Sink)
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewAsync starts the forwarding goroutine. Call Close to flush and stop it.
func NewAsync(sink Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	a := &Async{
		sink:   OrDisabled(sink),
		events: make(chan func(Sink), buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) ReportBuyerInput(report BuyerInputReport) {
	a.enqueue(func(s Sink) { s.ReportBuyerInput(report) })
}

func (a *Async) ReportBidding(report BiddingReport) {
	a.enqueue(func(s Sink) { s.ReportBidding(report) })
}

// Dropped returns how many reports were discarded.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close drains queued reports and stops the goroutine. Reports made after
// Close are dropped.
func (a *Async) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

func (a *Async) enqueue(event func(Sink)) {
	select {
	case <-a.stop:
		a.dropped.Add(1)
		return
	default:
	}

	select {
	case a.events <- event:
	default:
		a.dropped.Add(1)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for {
		select {
		case event := <-a.events:
			event(a.sink)
		case <-a.stop:
			for {
				select {
				case event := <-a.events:
					event(a.sink)
				default:
					return
				}
			}
		}
	}
}
