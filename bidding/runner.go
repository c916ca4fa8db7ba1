// Package bidding runs one buyer's bidding logic over its candidates with
// bounded parallelism and a wall-clock deadline. Work still running at the
// deadline is cancelled; outcomes that finished before it are kept.
package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/metrics"
)

// Executor runs one candidate's bidding logic. It should return promptly
// once ctx is done.
type Executor interface {
	GenerateBid(ctx context.Context, candidate core.CandidateRecord, signals core.AuctionSignals) (core.BidOutcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, candidate core.CandidateRecord, signals core.AuctionSignals) (core.BidOutcome, error)

func (f ExecutorFunc) GenerateBid(ctx context.Context, candidate core.CandidateRecord, signals core.AuctionSignals) (core.BidOutcome, error) {
	return f(ctx, candidate, signals)
}

// DefaultPoolSize is the pool size used by configuration that sets none.
const DefaultPoolSize = 8

// Config configures a Runner.
type Config struct {
	Executor Executor

	// Parallelism is the number of partitions per buyer. Values below one
	// are treated as one.
	Parallelism int

	// Deadline bounds each run, measured from partition launch.
	Deadline time.Duration

	// PoolSize bounds how many partitions execute at once across every run
	// sharing this Runner.
	PoolSize int

	// PerCandidateTimeout, when positive, cancels a single bidding call that
	// runs longer. Zero disables it.
	PerCandidateTimeout time.Duration

	Clock  clock.Clock
	Sink   metrics.Sink
	Logger *slog.Logger
}

// Result is what one run produced.
type Result struct {
	// Outcomes holds one entry per candidate that finished with a positive
	// bid before the deadline, in candidate order.
	Outcomes []core.BidOutcome
	State    State

	Completed int
	// Failed counts errors, panics and per-candidate timeouts.
	Failed int
	// NoBid counts calls that returned a bid that was not positive.
	NoBid int
	// Cancelled counts candidates with no result when the run ended.
	Cancelled int
}

// Runner executes bidding runs. It is safe for concurrent use; all runs
// share one worker pool.
type Runner struct {
	executor            Executor
	parallelism         int
	deadline            time.Duration
	perCandidateTimeout time.Duration
	pool                *semaphore.Weighted
	clock               clock.Clock
	sink                metrics.Sink
	logger              *slog.Logger
}

// NewRunner validates cfg. A nil executor, a non-positive deadline or a
// non-positive pool size fails with core.ErrConfiguration.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: nil bidding executor", core.ErrConfiguration)
	}
	if cfg.Deadline <= 0 {
		return nil, fmt.Errorf("%w: bidding deadline must be positive, got %s", core.ErrConfiguration, cfg.Deadline)
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("%w: worker pool size must be positive, got %d", core.ErrConfiguration, cfg.PoolSize)
	}
	if cfg.PerCandidateTimeout < 0 {
		return nil, fmt.Errorf("%w: negative per-candidate timeout %s", core.ErrConfiguration, cfg.PerCandidateTimeout)
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		executor:            cfg.Executor,
		parallelism:         cfg.Parallelism,
		deadline:            cfg.Deadline,
		perCandidateTimeout: cfg.PerCandidateTimeout,
		pool:                semaphore.NewWeighted(int64(cfg.PoolSize)),
		clock:               cfg.Clock,
		sink:                metrics.OrDisabled(cfg.Sink),
		logger:              cfg.Logger,
	}, nil
}

// Run bids every candidate of one buyer. Partitions run concurrently and
// candidates within a partition run one at a time in list order. When the
// deadline passes, or ctx is done, Run returns immediately with the outcomes
// gathered so far and State StateTimedOut. Per-candidate failures never
// surface as errors.
func (r *Runner) Run(ctx context.Context, buyer core.BuyerID, candidates []core.CandidateRecord, signals core.AuctionSignals) (*Result, error) {
	start := r.clock.Now()
	state := StateIdle
	transition := func(next State) {
		r.logger.Debug("bidding run state", "buyer", buyer, "from", state.String(), "to", next.String())
		state = next
	}

	ranges := Partition(len(candidates), r.parallelism)
	transition(StatePartitioned)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := newCollector(len(candidates))
	expired := make(chan struct{})
	timer := r.clock.AfterFunc(r.deadline, func() {
		collected.close()
		cancel()
		close(expired)
	})
	defer timer.Stop()

	transition(StateRunning)
	var wg sync.WaitGroup
	for _, span := range ranges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runPartition(runCtx, candidates, span, signals, collected)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	finished := false
	select {
	case <-done:
		finished = true
	case <-expired:
	case <-ctx.Done():
	}
	if finished && collected.close() {
		transition(StateCompleted)
	} else {
		collected.close()
		transition(StateTimedOut)
	}

	result := collected.result(state)
	r.report(buyer, len(candidates), result, r.clock.Now().Sub(start))
	return result, nil
}

func (r *Runner) runPartition(ctx context.Context, candidates []core.CandidateRecord, span [2]int, signals core.AuctionSignals, collected *collector) {
	if err := r.pool.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.pool.Release(1)

	for index := span[0]; index < span[1]; index++ {
		if ctx.Err() != nil {
			return
		}
		outcome, err := r.execute(ctx, candidates[index], signals)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			r.logger.Debug("bidding call failed", "buyer", candidates[index].Buyer, "candidate", candidates[index].Name, "error", err)
			collected.failure(false)
		case !core.IsPositiveBid(outcome.Bid):
			collected.failure(true)
		default:
			collected.success(index, outcome)
		}
	}
}

// execute runs one bidding call, converting panics and per-candidate
// timeouts into errors.
func (r *Runner) execute(ctx context.Context, candidate core.CandidateRecord, signals core.AuctionSignals) (outcome core.BidOutcome, err error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.perCandidateTimeout > 0 {
		timer := r.clock.AfterFunc(r.perCandidateTimeout, cancel)
		defer timer.Stop()
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("bidding logic panicked: %v", recovered)
		}
	}()

	outcome, err = r.executor.GenerateBid(callCtx, candidate, signals)
	if err == nil && callCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("candidate %s exceeded %s", candidate.Name, r.perCandidateTimeout)
	}
	outcome.Candidate = candidate
	return outcome, err
}

func (r *Runner) report(buyer core.BuyerID, candidates int, result *Result, latency time.Duration) {
	r.sink.ReportBidding(metrics.BiddingReport{
		Buyer:      string(buyer),
		Candidates: candidates,
		Completed:  result.Completed,
		Cancelled:  result.Cancelled,
		Failed:     result.Failed + result.NoBid,
		TimedOut:   result.State == StateTimedOut,
		Latency:    latency,
	})
}
