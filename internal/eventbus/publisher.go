package eventbus

import (
	"encoding/json"

	nc "github.com/nats-io/nats.go"

	"github.com/vscan/vscan/internal/progress"
)

// subject prefixes mirror the Progress Port event names.
const (
	subjectScanStarted      = "vscan.scan.started"
	subjectExtensionStarted = "vscan.extension.started"
	subjectCacheHit         = "vscan.extension.cache_hit"
	subjectFreshResult      = "vscan.extension.fresh_result"
	subjectExtensionFailed  = "vscan.extension.failed"
	subjectRetry            = "vscan.extension.retry"
	subjectScanCompleted    = "vscan.scan.completed"
)

// Publisher is a ProgressPort that broadcasts every event as JSON onto
// the embedded broker. A publish failure is logged nowhere by design — the event bus is a
// best-effort observability surface, never load-bearing for the scan
// itself.
type Publisher struct {
	conn *nc.Conn
}

// NewPublisher wraps an existing NATS connection (typically one opened
// against an embedded Server) as a Port.
func NewPublisher(conn *nc.Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) publish(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = p.conn.Publish(subject, data)
}

func (p *Publisher) ScanStarted(e progress.ScanStartedEvent) { p.publish(subjectScanStarted, e) }

func (p *Publisher) ExtensionStarted(e progress.ExtensionStartedEvent) {
	p.publish(subjectExtensionStarted, e)
}

func (p *Publisher) CacheHit(e progress.CacheHitEvent) { p.publish(subjectCacheHit, e) }

func (p *Publisher) FreshResult(e progress.FreshResultEvent) { p.publish(subjectFreshResult, e) }

func (p *Publisher) ExtensionFailed(e progress.ExtensionFailedEvent) {
	p.publish(subjectExtensionFailed, e)
}

func (p *Publisher) Retry(e progress.RetryEvent) { p.publish(subjectRetry, e) }

func (p *Publisher) ScanCompleted(e progress.ScanCompletedEvent) {
	p.publish(subjectScanCompleted, e)
	_ = p.conn.Flush()
}
