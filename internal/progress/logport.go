package progress

import (
	"github.com/vscan/vscan/internal/logging"
)

// LogPort is a plain-logger ProgressPort implementation, the default for
// cmd/vscan when no terminal UI is wired in.
type LogPort struct {
	log logging.Logger
}

// NewLogPort wraps log as a Port.
func NewLogPort(log logging.Logger) LogPort {
	return LogPort{log: log}
}

func (p LogPort) ScanStarted(e ScanStartedEvent) {
	p.log.Infof("scan started: %d candidates", e.TotalCandidates)
}

func (p LogPort) ExtensionStarted(e ExtensionStartedEvent) {
	p.log.Debugf("scanning %s@%s", e.Ref.ID(), e.Ref.Version)
}

func (p LogPort) CacheHit(e CacheHitEvent) {
	p.log.Debugf("cache hit: %s@%s (risk=%s)", e.Ref.ID(), e.Ref.Version, e.Verdict.RiskLevel)
}

func (p LogPort) FreshResult(e FreshResultEvent) {
	p.log.Infof("%s@%s: risk=%s vulns=%d", e.Ref.ID(), e.Ref.Version, e.Verdict.RiskLevel, e.Verdict.VulnCounts.Total)
}

func (p LogPort) ExtensionFailed(e ExtensionFailedEvent) {
	p.log.Warnf("%s@%s: %s (%s)", e.Ref.ID(), e.Ref.Version, e.Verdict.SourceStatus, e.Verdict.ErrorMessage)
}

func (p LogPort) Retry(e RetryEvent) {
	p.log.Debugf("retrying %s (attempt %d) after %s", e.Ref.ID(), e.Attempt, e.Delay)
}

func (p LogPort) ScanCompleted(e ScanCompletedEvent) {
	p.log.Infof("scan completed: succeeded=%d failed=%d not_found=%d from_cache=%d fresh=%d exit=%d",
		e.Stats.Succeeded, e.Stats.Failed, e.Stats.NotFound, e.Stats.FromCache, e.Stats.FreshScans, e.ExitCode)
}
