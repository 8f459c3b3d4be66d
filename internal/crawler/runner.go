package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// ResultSink receives every completed result.
type ResultSink interface {
	Write(ctx context.Context, result Result) error
}

// Summary counts how the invocations of one Run ended.
type Summary struct {
	Started   int
	Done      int
	Failed    int
	Transient int
	Terminal  int
	// Final is the queue as it looked after the last invocation returned.
	Final queue.Snapshot
}

// Runner drives a whole crawl inside one process. Start spawns a goroutine
// per invocation, so the crawl fans out exactly as wide as the scheduler allows.
type Runner struct {
	coordinator *Coordinator
	store       QueueStore
	sink        ResultSink
	logger      *zap.Logger
}

// NewRunner builds a Runner. The store is only used to inspect and stop the
// queue once every invocation has returned; sink may be nil.
func NewRunner(coordinator *Coordinator, store QueueStore, sink ResultSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		coordinator: coordinator,
		store:       store,
		sink:        sink,
		logger:      logger.Named("runner"),
	}
}

// Run starts one invocation of spec and waits until the self-scheduled fan-out
// drains. The first GeneralJobError cancels the remaining invocations and is returned.
func (r *Runner) Run(ctx context.Context, spec JobSpec) (Summary, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		summary Summary
	)
	record := func(kind OutcomeKind) {
		mu.Lock()
		defer mu.Unlock()
		switch kind {
		case OutcomeDone:
			summary.Done++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeTransient:
			summary.Transient++
		case OutcomeTerminal:
			summary.Terminal++
		}
	}

	var launch func()
	launch = func() {
		mu.Lock()
		summary.Started++
		mu.Unlock()
		g.Go(func() error {
			outcome, err := r.coordinator.Execute(gctx, spec)
			if err != nil {
				return err
			}
			record(outcome.Kind)
			if outcome.Kind != OutcomeDone || r.sink == nil {
				return nil
			}
			if err := r.sink.Write(gctx, outcome.Result); err != nil {
				return fmt.Errorf("write result for %s: %w", outcome.Job.URL, err)
			}
			return nil
		})
	}
	spec.Start = launch

	if err := spec.Validate(); err != nil {
		return Summary{}, err
	}
	r.logger.Info("crawl started", zap.String("queue", spec.Config.Name), zap.String("url", spec.URL))
	launch()
	runErr := g.Wait()

	final, err := r.finish(ctx, spec.Config.Name)
	if err != nil && runErr == nil {
		runErr = err
	}
	summary.Final = final
	r.logger.Info("crawl finished",
		zap.String("queue", spec.Config.Name),
		zap.Int("started", summary.Started),
		zap.Int("done", summary.Done),
		zap.Int("failed", summary.Failed),
		zap.Int("transient", summary.Transient),
		zap.Int("terminal", summary.Terminal),
		zap.Error(runErr),
	)
	return summary, runErr
}

// finish stops a queue that has nothing left queued or processing. Without it
// a crawl that ran out of links on a worker that did not hit a terminal
// admission would stay ACTIVE forever.
func (r *Runner) finish(ctx context.Context, name string) (queue.Snapshot, error) {
	snap, err := r.store.Snapshot(ctx, name)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("final snapshot: %w", err)
	}
	if snap.State.Status != queue.StatusActive || len(snap.Queue.Queued) > 0 || len(snap.Queue.Processing) > 0 {
		return snap, nil
	}
	if err := r.store.Stop(ctx, name); err != nil {
		return snap, fmt.Errorf("stop drained queue: %w", err)
	}
	snap.State.Status = queue.StatusInactive
	return snap, nil
}
