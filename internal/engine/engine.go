// Package engine implements the Scan Engine: the worker pool
// topology, coordinator loop, cache-write discipline, and cancellation
// handling that ties every other component together.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vscan/vscan/internal/cache"
	"github.com/vscan/vscan/internal/config"
	"github.com/vscan/vscan/internal/filter"
	"github.com/vscan/vscan/internal/logging"
	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/progress"
	"github.com/vscan/vscan/internal/resolver"
)

// Exit codes
const (
	ExitOK             = 0
	ExitFindings       = 1
	ExitScanIncomplete = 2
)

// ResolverFactory builds one Resolver per worker, so each owns an
// isolated client and throttling state.
type ResolverFactory func() resolver.Resolver

// retryObserver is implemented by Resolver implementations that want to
// report individual retry attempts back to the engine. HTTPResolver
// satisfies it; Nop and test doubles need not.
type retryObserver interface {
	OnRetry(fn func(attempt int, delay time.Duration))
}

// Engine orchestrates one scan. It owns the worker pool, the result
// channel, and the cache writer; nothing outside Engine ever calls
// cache.Store.Store directly.
type Engine struct {
	cfg      config.ScanConfig
	store    *cache.Store
	newRes   ResolverFactory
	filters  filter.Set
	port     progress.Port
	log      logging.Logger
	stats    *model.ScanStats
}

// New builds an Engine. store may be nil only if cfg.UseCache() is false
// for the whole scan; callers that pass use_cache=true must open a Store
// first.
func New(cfg config.ScanConfig, store *cache.Store, newRes ResolverFactory, filters filter.Set, port progress.Port, log logging.Logger) *Engine {
	if port == nil {
		port = progress.Nop{}
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Engine{cfg: cfg, store: store, newRes: newRes, filters: filters, port: port, log: log}
}

// workItem is a task handed from the coordinator to the worker pool.
type workItem struct {
	ref model.ExtensionRef
}

// workResult is what a worker publishes back on the shared channel.
type workResult struct {
	ref     model.ExtensionRef
	verdict model.ExtensionVerdict
}

// Result is the outcome of a full scan, returned to the host (cmd/vscan
// or any other embedder).
type Result struct {
	Verdicts  []model.ExtensionVerdict
	Stats     model.Snapshot
	Cancelled bool
	ExitCode  int
}

// Run executes the full pipeline over refs: pre-scan filter, cache
// lookup, dispatch to the worker pool, drain, cache writes, stats, and
// Progress Port emission. ctx cancellation triggers a cooperative
// shutdown: no new tasks are enqueued, in-flight results already
// received are still cached, and Run returns with Cancelled=true.
func (e *Engine) Run(ctx context.Context, refs []model.ExtensionRef, riskThreshold model.RiskLevel) Result {
	now := time.Now()
	e.stats = model.NewScanStats(now)

	candidates := make([]model.ExtensionRef, 0, len(refs))
	for _, ref := range refs {
		if e.filters.PreScan(ref) {
			candidates = append(candidates, ref)
		}
	}
	e.stats.AddDiscovered(len(candidates))

	e.port.ScanStarted(progress.ScanStartedEvent{TotalCandidates: len(candidates), StartedAt: now})

	var toDispatch []model.ExtensionRef
	var verdicts []model.ExtensionVerdict

	for _, ref := range candidates {
		if e.cfg.UseCache() && !e.cfg.RefreshCache() && e.store != nil {
			if v, ok := e.store.Lookup(ref.ID(), ref.Version, now, e.cfg.CacheMaxAge()); ok {
				e.stats.IncFromCache()
				e.stats.IncSucceeded()
				e.port.CacheHit(progress.CacheHitEvent{Ref: ref, Verdict: v})
				verdicts = append(verdicts, v)
				continue
			}
		}
		toDispatch = append(toDispatch, ref)
	}

	dispatched, cancelled := e.dispatchAndDrain(ctx, toDispatch)
	verdicts = append(verdicts, dispatched...)

	postFiltered := verdicts[:0]
	for _, v := range verdicts {
		if e.filters.PostScan(v) {
			postFiltered = append(postFiltered, v)
		}
	}

	e.stats.SetEnded(time.Now())
	snapshot := e.stats.Snapshot()

	exitCode := computeExitCode(postFiltered, snapshot, cancelled, riskThreshold)
	e.port.ScanCompleted(progress.ScanCompletedEvent{Stats: snapshot, Cancelled: cancelled, ExitCode: exitCode})

	return Result{Verdicts: postFiltered, Stats: snapshot, Cancelled: cancelled, ExitCode: exitCode}
}

// dispatchAndDrain runs the worker pool over refs and returns every
// verdict the coordinator drained before stopping, plus whether the run
// was cut short by cancellation.
func (e *Engine) dispatchAndDrain(ctx context.Context, refs []model.ExtensionRef) ([]model.ExtensionVerdict, bool) {
	if len(refs) == 0 {
		return nil, ctx.Err() != nil
	}

	tasks := make(chan workItem, len(refs))
	results := make(chan workResult, len(refs))

	workerCount := e.cfg.Workers()
	if workerCount > len(refs) {
		workerCount = len(refs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		res := e.newRes()
		go e.runWorker(ctx, &wg, res, tasks, results)
	}

	for _, ref := range refs {
		e.port.ExtensionStarted(progress.ExtensionStartedEvent{Ref: ref})
		tasks <- workItem{ref: ref}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	var verdicts []model.ExtensionVerdict
	cancelled := false

	for r := range results {
		if e.cfg.UseCache() && r.verdict.SourceStatus == model.SourceSuccess && e.store != nil {
			if err := e.store.Store(r.verdict, time.Now()); err != nil {
				e.log.Errorf("cache store failed for %s@%s: %v", r.ref.ID(), r.ref.Version, err)
			}
		}

		switch r.verdict.SourceStatus {
		case model.SourceSuccess:
			e.stats.IncFreshScan()
			e.stats.IncSucceeded()
			e.port.FreshResult(progress.FreshResultEvent{Ref: r.ref, Verdict: r.verdict})
		case model.SourceNotFound:
			e.stats.IncFreshScan()
			e.stats.IncNotFound()
			e.port.ExtensionFailed(progress.ExtensionFailedEvent{Ref: r.ref, Verdict: r.verdict})
		default:
			e.stats.IncFreshScan()
			e.stats.IncFailed()
			e.port.ExtensionFailed(progress.ExtensionFailedEvent{Ref: r.ref, Verdict: r.verdict})
		}

		verdicts = append(verdicts, r.verdict)

		if ctx.Err() != nil {
			cancelled = true
		}
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	return verdicts, cancelled
}

// runWorker pulls tasks until the channel closes or ctx is cancelled,
// honoring per-client throttling inside the Resolver implementation
// itself. Cancellation is checked cooperatively before accepting a
// new task and before publishing a result.
func (e *Engine) runWorker(ctx context.Context, wg *sync.WaitGroup, res resolver.Resolver, tasks <-chan workItem, results chan<- workResult) {
	defer wg.Done()

	obs, observable := res.(retryObserver)

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-tasks:
			if !ok {
				return
			}

			if observable {
				ref := item.ref
				obs.OnRetry(func(attempt int, delay time.Duration) {
					e.stats.IncRetriedRequests()
					e.port.Retry(progress.RetryEvent{Ref: ref, Attempt: attempt, Delay: delay})
				})
			}

			verdict, err := res.Resolve(ctx, item.ref)
			if err != nil {
				// ctx was cancelled before any verdict could be produced;
				// nothing to publish.
				return
			}

			select {
			case results <- workResult{ref: item.ref, verdict: verdict}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// computeExitCode implements the exit-code rule: a cancelled scan always
// reports incomplete, otherwise any finding above threshold (or any
// vulnerability count) reports findings, and a clean scan reports ok.
func computeExitCode(verdicts []model.ExtensionVerdict, stats model.Snapshot, cancelled bool, threshold model.RiskLevel) int {
	if cancelled {
		return ExitScanIncomplete
	}

	findings := false
	for _, v := range verdicts {
		if v.SourceStatus != model.SourceSuccess {
			continue
		}
		if v.VulnCounts.Total > 0 {
			findings = true
		}
		if v.RiskLevel >= threshold {
			findings = true
		}
	}

	if findings {
		return ExitFindings
	}
	return ExitOK
}
