// Package notifications implements a Windows-only desktop notifier
// ProgressPort.
package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"

	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/progress"
)

// ToastNotifier fires a single desktop toast on ScanCompleted when the
// scan's exit code is non-zero (findings or an incomplete scan). The
// stored riskThreshold is not consulted; the exit code alone decides.
// Every other Progress Port event is ignored.
type ToastNotifier struct {
	appID         string
	dashboardURL  string
	riskThreshold model.RiskLevel
}

// NewToastNotifier builds a notifier. appID defaults to "vscan" and
// dashboardURL to "http://localhost:8787".
func NewToastNotifier(appID, dashboardURL string, riskThreshold model.RiskLevel) *ToastNotifier {
	if appID == "" {
		appID = "vscan"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8787"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL, riskThreshold: riskThreshold}
}

// IsSupported reports whether toast notifications can be pushed on this
// platform.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}

func (t *ToastNotifier) ScanStarted(progress.ScanStartedEvent)           {}
func (t *ToastNotifier) ExtensionStarted(progress.ExtensionStartedEvent) {}
func (t *ToastNotifier) CacheHit(progress.CacheHitEvent)                 {}
func (t *ToastNotifier) FreshResult(progress.FreshResultEvent)           {}
func (t *ToastNotifier) ExtensionFailed(progress.ExtensionFailedEvent)   {}
func (t *ToastNotifier) Retry(progress.RetryEvent)                      {}

// ScanCompleted pushes a toast summarizing outcomes when the exit code is
// non-zero.
func (t *ToastNotifier) ScanCompleted(e progress.ScanCompletedEvent) {
	if !t.IsSupported() {
		return
	}
	if e.ExitCode == 0 {
		return
	}

	title := "Security scan found issues"
	message := fmt.Sprintf("%d succeeded, %d failed, %d not found",
		e.Stats.Succeeded, e.Stats.Failed, e.Stats.NotFound)

	notification := toast.Notification{
		AppID:   t.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: t.dashboardURL},
		},
	}
	// Best-effort: a failed toast push must never fail the scan itself.
	_ = notification.Push()
}
