// Package progress defines the Progress Port: a typed-event
// interface the Scan Engine calls into, decoupling it from presentation.
package progress

import (
	"time"

	"github.com/vscan/vscan/internal/model"
)

// Port receives typed scan lifecycle events. Implementations (terminal
// UI, plain logger, silent, event bus) live outside the engine; the
// engine depends only on this interface.
type Port interface {
	ScanStarted(e ScanStartedEvent)
	ExtensionStarted(e ExtensionStartedEvent)
	CacheHit(e CacheHitEvent)
	FreshResult(e FreshResultEvent)
	ExtensionFailed(e ExtensionFailedEvent)
	Retry(e RetryEvent)
	ScanCompleted(e ScanCompletedEvent)
}

// ScanStartedEvent fires once, before any dispatch, with the discovered
// (post pre-scan-filter) candidate count.
type ScanStartedEvent struct {
	TotalCandidates int
	StartedAt       time.Time
}

// ExtensionStartedEvent fires when the coordinator hands ref to the
// worker pool, before any worker has picked it up.
type ExtensionStartedEvent struct {
	Ref model.ExtensionRef
}

// CacheHitEvent fires when the coordinator serves a verdict from cache
// without dispatching to a worker.
type CacheHitEvent struct {
	Ref     model.ExtensionRef
	Verdict model.ExtensionVerdict
}

// FreshResultEvent fires when a worker's successful verdict is drained,
// after it has been committed to cache (when caching is enabled).
type FreshResultEvent struct {
	Ref     model.ExtensionRef
	Verdict model.ExtensionVerdict
}

// ExtensionFailedEvent fires for a verdict whose source_status is not
// success (not_found or error).
type ExtensionFailedEvent struct {
	Ref     model.ExtensionRef
	Verdict model.ExtensionVerdict
}

// RetryEvent fires once per retried request (mirrors
// ScanStats.RetriedRequests).
type RetryEvent struct {
	Ref     model.ExtensionRef
	Attempt int
	Delay   time.Duration
}

// ScanCompletedEvent fires exactly once, after the coordinator has
// finished draining (including partial drains under cancellation).
type ScanCompletedEvent struct {
	Stats     model.Snapshot
	Cancelled bool
	ExitCode  int
}

// Nop discards every event; the default for headless/library use.
type Nop struct{}

func (Nop) ScanStarted(ScanStartedEvent)             {}
func (Nop) ExtensionStarted(ExtensionStartedEvent)   {}
func (Nop) CacheHit(CacheHitEvent)                   {}
func (Nop) FreshResult(FreshResultEvent)             {}
func (Nop) ExtensionFailed(ExtensionFailedEvent)     {}
func (Nop) Retry(RetryEvent)                         {}
func (Nop) ScanCompleted(ScanCompletedEvent)         {}

// Multi fans one event out to several ports, e.g. a CLI logger plus an
// event-bus publisher.
type Multi struct {
	Ports []Port
}

func (m Multi) ScanStarted(e ScanStartedEvent) {
	for _, p := range m.Ports {
		p.ScanStarted(e)
	}
}

func (m Multi) ExtensionStarted(e ExtensionStartedEvent) {
	for _, p := range m.Ports {
		p.ExtensionStarted(e)
	}
}

func (m Multi) CacheHit(e CacheHitEvent) {
	for _, p := range m.Ports {
		p.CacheHit(e)
	}
}

func (m Multi) FreshResult(e FreshResultEvent) {
	for _, p := range m.Ports {
		p.FreshResult(e)
	}
}

func (m Multi) ExtensionFailed(e ExtensionFailedEvent) {
	for _, p := range m.Ports {
		p.ExtensionFailed(e)
	}
}

func (m Multi) Retry(e RetryEvent) {
	for _, p := range m.Ports {
		p.Retry(e)
	}
}

func (m Multi) ScanCompleted(e ScanCompletedEvent) {
	for _, p := range m.Ports {
		p.ScanCompleted(e)
	}
}
