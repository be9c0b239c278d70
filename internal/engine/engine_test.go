package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vscan/vscan/internal/cache"
	"github.com/vscan/vscan/internal/config"
	"github.com/vscan/vscan/internal/filter"
	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/resolver"
)

// fakeResolver returns canned verdicts keyed by extension ID, optionally
// counting calls for result-equivalence assertions.
type fakeResolver struct {
	mu      sync.Mutex
	verdict func(ref model.ExtensionRef) model.ExtensionVerdict
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, ref model.ExtensionRef) (model.ExtensionVerdict, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.ExtensionVerdict{}, err
	}
	return f.verdict(ref), nil
}

func successVerdict(ref model.ExtensionRef) model.ExtensionVerdict {
	return model.ExtensionVerdict{
		ExtensionID:  ref.ID(),
		Version:      ref.Version,
		RiskLevel:    model.RiskLow,
		SourceStatus: model.SourceSuccess,
		UpdatedAt:    time.Now(),
		AnalyzedAt:   time.Now(),
	}
}

func testConfig(t *testing.T, workers int) config.ScanConfig {
	t.Helper()
	b := config.DefaultBuilder()
	b.Workers = workers
	b.CacheDir = t.TempDir()
	b.RequestDelay = 100 * time.Millisecond
	cfg, err := b.Freeze()
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return cfg
}

func refs(n int) []model.ExtensionRef {
	out := make([]model.ExtensionRef, n)
	for i := range out {
		out[i] = model.ExtensionRef{Publisher: "pub", Name: fmt.Sprintf("ext%d", i), Version: "1.0.0"}
	}
	return out
}

func TestRunAllCachedScan(t *testing.T) {
	cfg := testConfig(t, 3)
	store, err := cache.Open(cfg.CacheDir().String())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	r := refs(3)
	for _, ref := range r {
		if err := store.Store(successVerdict(ref), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	fr := &fakeResolver{verdict: successVerdict}
	e := New(cfg, store, func() resolver.Resolver { return fr }, filter.Set{}, nil, nil)

	result := e.Run(context.Background(), r, model.RiskHigh)
	if len(result.Verdicts) != 3 {
		t.Fatalf("got %d verdicts, want 3", len(result.Verdicts))
	}
	if result.Stats.FromCache != 3 || result.Stats.FreshScans != 0 {
		t.Errorf("expected all 3 from cache, got from_cache=%d fresh=%d", result.Stats.FromCache, result.Stats.FreshScans)
	}
	if fr.calls != 0 {
		t.Errorf("expected resolver never called on an all-cache hit scan, got %d calls", fr.calls)
	}
}

func TestRunMixedCacheAndNetwork(t *testing.T) {
	cfg := testConfig(t, 2)
	store, err := cache.Open(cfg.CacheDir().String())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	r := refs(4)
	if err := store.Store(successVerdict(r[0]), time.Now()); err != nil {
		t.Fatal(err)
	}

	fr := &fakeResolver{verdict: successVerdict}
	e := New(cfg, store, func() resolver.Resolver { return fr }, filter.Set{}, nil, nil)

	result := e.Run(context.Background(), r, model.RiskHigh)
	if result.Stats.FromCache != 1 {
		t.Errorf("got from_cache=%d, want 1", result.Stats.FromCache)
	}
	if result.Stats.FreshScans != 3 {
		t.Errorf("got fresh_scans=%d, want 3", result.Stats.FreshScans)
	}
	if result.Stats.RecordedTotal() != result.Stats.OutcomeTotal() {
		t.Errorf("invariant violated: from_cache+fresh=%d outcome=%d", result.Stats.RecordedTotal(), result.Stats.OutcomeTotal())
	}
}

func TestRunWorkerCountResultEquivalence(t *testing.T) {
	r := refs(6)

	var multisets [][]string
	for _, w := range []int{1, 2, 5} {
		cfg := testConfig(t, w)
		store, err := cache.Open(cfg.CacheDir().String())
		if err != nil {
			t.Fatalf("cache.Open: %v", err)
		}

		fr := &fakeResolver{verdict: successVerdict}
		e := New(cfg, store, func() resolver.Resolver { return fr }, filter.Set{}, nil, nil)
		result := e.Run(context.Background(), r, model.RiskHigh)
		store.Close()

		ids := make([]string, 0, len(result.Verdicts))
		for _, v := range result.Verdicts {
			ids = append(ids, v.ExtensionID+"@"+v.Version)
		}
		multisets = append(multisets, sortedCopy(ids))
	}

	for i := 1; i < len(multisets); i++ {
		if !equalSlices(multisets[0], multisets[i]) {
			t.Errorf("worker-count result mismatch: %v vs %v", multisets[0], multisets[i])
		}
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunCancellationPreservesPartialProgress(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg2 := cfg // workers=1 to make cancellation timing deterministic-ish
	store, err := cache.Open(cfg2.CacheDir().String())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	r := refs(5)
	ctx, cancel := context.WithCancel(context.Background())

	var served int32
	fr := &fakeResolver{}
	fr.verdict = func(ref model.ExtensionRef) model.ExtensionVerdict {
		served++
		if served == 2 {
			cancel()
		}
		return successVerdict(ref)
	}

	e := New(cfg2, store, func() resolver.Resolver { return fr }, filter.Set{}, nil, nil)
	result := e.Run(ctx, r, model.RiskHigh)

	if result.Stats.FreshScans == 0 {
		t.Error("expected at least some results drained before cancellation took effect")
	}

	st, err := store.Stats(time.Now(), cfg2.CacheMaxAge())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries == 0 {
		t.Error("expected at least one cache entry committed under cancellation")
	}
}

// retryingResolver implements retryObserver so the engine can exercise the
// OnRetry wiring path; its first Resolve call per ref simulates one retried
// attempt before returning a success verdict.
type retryingResolver struct {
	mu      sync.Mutex
	onRetry func(attempt int, delay time.Duration)
}

func (r *retryingResolver) OnRetry(fn func(attempt int, delay time.Duration)) {
	r.mu.Lock()
	r.onRetry = fn
	r.mu.Unlock()
}

func (r *retryingResolver) Resolve(ctx context.Context, ref model.ExtensionRef) (model.ExtensionVerdict, error) {
	r.mu.Lock()
	cb := r.onRetry
	r.mu.Unlock()
	if cb != nil {
		cb(0, time.Millisecond)
	}
	return successVerdict(ref), nil
}

func TestRunCountsRetriedRequests(t *testing.T) {
	cfg := testConfig(t, 2)
	store, err := cache.Open(cfg.CacheDir().String())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	r := refs(3)
	e := New(cfg, store, func() resolver.Resolver { return &retryingResolver{} }, filter.Set{}, nil, nil)
	result := e.Run(context.Background(), r, model.RiskHigh)

	if result.Stats.RetriedRequests != 3 {
		t.Errorf("got retried_requests=%d, want 3", result.Stats.RetriedRequests)
	}
}

func TestComputeExitCodeNoFindings(t *testing.T) {
	v := []model.ExtensionVerdict{{SourceStatus: model.SourceSuccess, RiskLevel: model.RiskLow}}
	if got := computeExitCode(v, model.Snapshot{}, false, model.RiskHigh); got != ExitOK {
		t.Errorf("got %d, want ExitOK", got)
	}
}

func TestComputeExitCodeWithFindings(t *testing.T) {
	v := []model.ExtensionVerdict{{SourceStatus: model.SourceSuccess, RiskLevel: model.RiskCritical}}
	if got := computeExitCode(v, model.Snapshot{}, false, model.RiskHigh); got != ExitFindings {
		t.Errorf("got %d, want ExitFindings", got)
	}
}

func TestComputeExitCodeCancelled(t *testing.T) {
	if got := computeExitCode(nil, model.Snapshot{}, true, model.RiskHigh); got != ExitScanIncomplete {
		t.Errorf("got %d, want ExitScanIncomplete", got)
	}
}
