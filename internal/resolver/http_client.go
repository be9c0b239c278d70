package resolver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vscan/vscan/internal/clock"
	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/safeio"
	"github.com/vscan/vscan/internal/vscanerr"
)

// pollInterval is the default wait between poll requests.
const pollInterval = 2 * time.Second

// maxPollWait bounds the total wall-clock spent polling one extension
// before the resolver gives up with a timeout verdict.
const maxPollWait = 5 * time.Minute

// Options configures an HTTPResolver.
type Options struct {
	BaseURL           string
	UserAgent         string
	RequestDelay      time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	MaxResponseBytes  int64
	PerRequestTimeout time.Duration
	Clock             clock.Clock
	// Detailed retains the raw results response body on the verdict
	// (ExtensionVerdict.RawPayload) when true, per spec §3.1's "detailed
	// mode" data-model note. Off by default: the remote payload is
	// otherwise discarded once parsed.
	Detailed bool
}

// HTTPResolver implements Resolver against the remote analyzer's HTTP
// wire protocol. Each instance owns its own *http.Client and throttling
// state; a worker pool's global throttle emerges implicitly from one
// HTTPResolver per worker.
type HTTPResolver struct {
	httpClient *http.Client
	opts       Options
	clock      clock.Clock

	mu            sync.Mutex
	lastRequestAt time.Time
	haveLast      bool

	onRetry func(attempt int, delay time.Duration) // optional hook, used by the engine to bump retried_requests
}

// New creates an HTTPResolver. baseURL must be an https:// URL; callers
// that need to point at a local test server over plain HTTP should use
// NewInsecureForTests instead.
func New(opts Options) (*HTTPResolver, error) {
	if !strings.HasPrefix(opts.BaseURL, "https://") {
		return nil, vscanerr.New(vscanerr.InvalidInput, fmt.Errorf("resolver base URL must use https://, got %q", opts.BaseURL))
	}
	return newResolver(opts)
}

// NewInsecureForTests builds an HTTPResolver that accepts a non-HTTPS base
// URL, for use against httptest.Server in this package's own tests only.
func NewInsecureForTests(opts Options) (*HTTPResolver, error) {
	return newResolver(opts)
}

func newResolver(opts Options) (*HTTPResolver, error) {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vscan/0.1.0 (+https://github.com/vscan/vscan)"
	}

	return &HTTPResolver{
		opts: opts,
		clock: opts.Clock,
		httpClient: &http.Client{
			Timeout: opts.PerRequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}, nil
}

// OnRetry registers a callback invoked once per retried request, with the
// attempt number and the backoff delay about to be slept, letting the
// engine maintain ScanStats.RetriedRequests and emit a Retry progress
// event without the resolver depending on either type.
func (r *HTTPResolver) OnRetry(fn func(attempt int, delay time.Duration)) { r.onRetry = fn }

// Resolve runs submit → poll → fetch for ref, translating every terminal
// outcome into a verdict rather than an error.
func (r *HTTPResolver) Resolve(ctx context.Context, ref model.ExtensionRef) (model.ExtensionVerdict, error) {
	now := r.clock.Now()
	base := model.ExtensionVerdict{
		ExtensionID: ref.ID(),
		Version:     ref.Version,
		AnalyzedAt:  now,
		UpdatedAt:   now,
	}

	if err := ctx.Err(); err != nil {
		return model.ExtensionVerdict{}, err
	}

	analysisID, status, err := r.submit(ctx, ref)
	if err != nil {
		return errorVerdict(base, err), nil
	}
	base.AnalysisID = analysisID

	if !isTerminal(status) {
		status, err = r.pollUntilTerminal(ctx, analysisID)
		if err != nil {
			return errorVerdict(base, err), nil
		}
	}

	if status == statusFailed {
		base.SourceStatus = model.SourceError
		base.ErrorMessage = safeio.Sanitize("remote analysis reported failed status", safeio.ContextError)
		return base, nil
	}

	result, raw, err := r.fetch(ctx, analysisID)
	if err != nil {
		return errorVerdict(base, err), nil
	}

	verdict := applyResults(base, result)
	if r.opts.Detailed {
		verdict.RawPayload = raw
	}
	return verdict, nil
}

func errorVerdict(base model.ExtensionVerdict, err error) model.ExtensionVerdict {
	if vscanerr.Is(err, vscanerr.NotFound) {
		base.SourceStatus = model.SourceNotFound
		return base
	}
	base.SourceStatus = model.SourceError
	base.ErrorMessage = safeio.Sanitize(err.Error(), safeio.ContextError)
	return base
}

// submit posts to /api/extensions/analyze, retrying transient failures.
// Each call mints its own RequestID; retries of the same logical submit
// (driven by doWithRetry) reuse it so the server can deduplicate.
func (r *HTTPResolver) submit(ctx context.Context, ref model.ExtensionRef) (string, remoteStatus, error) {
	requestID := uuid.NewString()
	body, err := json.Marshal(submitRequest{
		Publisher: ref.Publisher,
		Name:      ref.Name,
		Version:   ref.Version,
		RequestID: requestID,
	})
	if err != nil {
		return "", "", vscanerr.New(vscanerr.NetworkPermanent, fmt.Errorf("marshaling submit request: %w", err))
	}

	var resp submitResponse
	err = r.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL+"/api/extensions/analyze", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", requestID)
		return req, nil
	}, []int{http.StatusAccepted, http.StatusOK}, &resp, nil)
	if err != nil {
		return "", "", err
	}

	return resp.AnalysisID, normalizeStatus(resp.Status), nil
}

// pollUntilTerminal polls GET /api/extensions/status/{id} until a terminal
// status or the bounded wall-clock elapses.
func (r *HTTPResolver) pollUntilTerminal(ctx context.Context, analysisID string) (remoteStatus, error) {
	deadline := r.clock.Now().Add(maxPollWait)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if r.clock.Now().After(deadline) {
			return "", vscanerr.New(vscanerr.NetworkTransient, fmt.Errorf("polling %s timed out after %s", analysisID, maxPollWait))
		}

		var resp statusResponse
		err := r.doWithRetry(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, r.opts.BaseURL+"/api/extensions/status/"+analysisID, nil)
		}, []int{http.StatusOK}, &resp, nil)
		if err != nil {
			return "", err
		}

		status := normalizeStatus(resp.Status)
		if isTerminal(status) {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.clock.After(pollInterval):
		}
	}
}

// fetch retrieves GET /api/extensions/results/{id}. raw carries the decoded
// body's bytes back to the caller so detailed mode can retain them on the
// verdict without re-requesting or re-encoding them.
func (r *HTTPResolver) fetch(ctx context.Context, analysisID string) (resultsResponse, []byte, error) {
	var resp resultsResponse
	var raw []byte
	err := r.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, r.opts.BaseURL+"/api/extensions/results/"+analysisID, nil)
	}, []int{http.StatusOK}, &resp, &raw)
	return resp, raw, err
}

// doWithRetry throttles, issues the request built by reqFn, and retries
// policy until maxRetries is exhausted. okCodes are the status
// codes treated as success; any other status, 2xx included, is never
// decoded and ends in an error (or a retry for retryable codes). rawOut,
// if non-nil, receives the raw body bytes alongside the decode into out.
func (r *HTTPResolver) doWithRetry(ctx context.Context, reqFn func() (*http.Request, error), okCodes []int, out interface{}, rawOut *[]byte) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.throttle(ctx)

		req, err := reqFn()
		if err != nil {
			return vscanerr.New(vscanerr.NetworkPermanent, err)
		}
		req.Header.Set("User-Agent", r.opts.UserAgent)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = vscanerr.New(vscanerr.NetworkTransient, fmt.Errorf("request failed: %w", err))
			if !r.retryAllowed(ctx, attempt, lastErr, 0, "") {
				return lastErr
			}
			continue
		}

		body, readErr := safeio.BoundedRead(resp.Body, r.opts.MaxResponseBytes)
		resp.Body.Close()
		if readErr != nil {
			return vscanerr.New(vscanerr.NetworkPermanent, fmt.Errorf("reading response: %w", readErr))
		}

		if containsCode(okCodes, resp.StatusCode) {
			if resp.StatusCode == http.StatusNotFound {
				return vscanerr.New(vscanerr.NotFound, fmt.Errorf("extension not found on remote"))
			}
			if err := decodeObject(body, out); err != nil {
				return vscanerr.New(vscanerr.NetworkPermanent, err)
			}
			if rawOut != nil {
				*rawOut = body
			}
			return nil
		}

		if resp.StatusCode == http.StatusNotFound {
			return vscanerr.New(vscanerr.NotFound, fmt.Errorf("extension not found on remote"))
		}

		if permanentStatus(resp.StatusCode) {
			return vscanerr.New(vscanerr.NetworkPermanent, fmt.Errorf("remote returned %d", resp.StatusCode))
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = vscanerr.New(vscanerr.NetworkTransient, fmt.Errorf("remote returned %d", resp.StatusCode))
			if !r.retryAllowed(ctx, attempt, lastErr, resp.StatusCode, resp.Header.Get("Retry-After")) {
				return lastErr
			}
			continue
		}

		return vscanerr.New(vscanerr.NetworkPermanent, fmt.Errorf("unexpected remote status %d", resp.StatusCode))
	}
}

// retryAllowed sleeps for the appropriate backoff and reports whether
// another attempt should be made. It returns false once maxRetries retries
// have already been made (maxRetries+1 attempts in all), or if ctx is
// canceled during the sleep.
func (r *HTTPResolver) retryAllowed(ctx context.Context, attempt int, cause error, statusCode int, retryAfterHeader string) bool {
	if attempt >= r.opts.MaxRetries {
		return false
	}

	delay := backoffDelay(attempt, r.opts.RetryBaseDelay, backoffCap, nil)
	if override, ok := retryAfterOverride(retryAfterHeader, r.clock.Now()); ok {
		delay = override
	}

	if r.onRetry != nil {
		r.onRetry(attempt, delay)
	}

	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(delay):
		return true
	}
}

// throttle sleeps as needed so consecutive requests from this instance are
// spaced by at least RequestDelay.
func (r *HTTPResolver) throttle(ctx context.Context) {
	r.mu.Lock()
	var wait time.Duration
	if r.haveLast {
		elapsed := r.clock.Now().Sub(r.lastRequestAt)
		if elapsed < r.opts.RequestDelay {
			wait = r.opts.RequestDelay - elapsed
		}
	}
	r.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-r.clock.After(wait):
		}
	}

	r.mu.Lock()
	r.lastRequestAt = r.clock.Now()
	r.haveLast = true
	r.mu.Unlock()
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// decodeObject parses body as JSON, rejecting non-object roots.
func decodeObject(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("response body is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

func applyResults(base model.ExtensionVerdict, result resultsResponse) model.ExtensionVerdict {
	base.SourceStatus = model.SourceSuccess
	base.SecurityScore = result.SecurityScore.Score
	base.RiskLevel = model.ParseRiskLevel(result.SecurityScore.RiskLevel)
	base.PublisherVerified = result.PublisherVerified

	summary := result.AnalysisModules.Dependencies.Vulnerabilities.Summary
	base.VulnCounts = model.VulnCounts{
		Critical: summary.Critical,
		High:     summary.High,
		Moderate: summary.Moderate,
		Low:      summary.Low,
		Info:     summary.Info,
		Total:    summary.Total,
	}

	for _, d := range result.AnalysisModules.Dependencies.Vulnerabilities.Items {
		base.Dependencies = append(base.Dependencies, model.Dependency{
			Name:      d.Name,
			Version:   d.Version,
			RiskLevel: model.ParseRiskLevel(d.RiskLevel),
		})
	}
	for _, f := range result.AnalysisModules.RiskFactors {
		base.RiskFactors = append(base.RiskFactors, model.RiskFactor{
			Code:        f.Code,
			Description: f.Description,
			Severity:    model.ParseRiskLevel(f.Severity),
		})
	}

	return base
}
