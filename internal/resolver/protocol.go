// Package resolver implements the remote analyzer protocol client:
// submit → poll → fetch, with retries, backoff+jitter, and throttling.
// Each worker owns one Resolver instance; no state is shared across
// instances.
package resolver

import (
	"context"
	"time"

	"github.com/vscan/vscan/internal/model"
)

// Resolver turns an ExtensionRef into an ExtensionVerdict via the remote
// analyzer. Resolve itself does not return a bare error for per-extension
// outcomes (not_found, timeout, transport failure all become a verdict
// with the matching SourceStatus); it only returns an error when ctx is
// canceled before any verdict could be produced.
type Resolver interface {
	Resolve(ctx context.Context, ref model.ExtensionRef) (model.ExtensionVerdict, error)
}

// Nop is a Resolver that never contacts a remote analyzer; every call
// resolves to a SourceError verdict. It exists so a caller that fails to
// construct a real client can still hand the engine something that
// satisfies Resolver instead of a nil pointer.
type Nop struct{}

// Resolve implements Resolver.
func (Nop) Resolve(ctx context.Context, ref model.ExtensionRef) (model.ExtensionVerdict, error) {
	if err := ctx.Err(); err != nil {
		return model.ExtensionVerdict{}, err
	}
	return model.ExtensionVerdict{
		ExtensionID:  ref.ID(),
		Version:      ref.Version,
		SourceStatus: model.SourceError,
		ErrorMessage: "resolver unavailable",
		AnalyzedAt:   time.Time{},
	}, nil
}

// remoteStatus is the poll-endpoint status vocabulary. Every unrecognized
// status, including one the remote may consider terminal, is treated as
// pending; none is mapped to failed.
type remoteStatus string

const (
	statusPending   remoteStatus = "pending"
	statusCompleted remoteStatus = "completed"
	statusFailed    remoteStatus = "failed"
)

// submitRequest is the body of POST /api/extensions/analyze. RequestID is
// a client-generated idempotency key so a retried submit (the original
// request may have actually reached the server before the client gave up
// waiting for a response) does not spawn a duplicate analysis job.
type submitRequest struct {
	Publisher string `json:"publisher"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	RequestID string `json:"requestId"`
}

// submitResponse is the 202 body returned by submit.
type submitResponse struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
}

// statusResponse is the body of GET /api/extensions/status/{id}.
type statusResponse struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress"`
}

// resultsResponse is the body of GET /api/extensions/results/{id}. Only a
// handful of fields are parsed out of the response; everything else is
// ignored.
type resultsResponse struct {
	SecurityScore struct {
		Score     *int   `json:"score"`
		RiskLevel string `json:"riskLevel"`
	} `json:"securityScore"`
	PublisherVerified bool `json:"publisherVerified"`
	AnalysisModules   struct {
		Dependencies struct {
			Vulnerabilities struct {
				Summary struct {
					Critical int `json:"critical"`
					High     int `json:"high"`
					Moderate int `json:"moderate"`
					Low      int `json:"low"`
					Info     int `json:"info"`
					Total    int `json:"total"`
				} `json:"summary"`
				Items []struct {
					Name      string `json:"name"`
					Version   string `json:"version"`
					RiskLevel string `json:"riskLevel"`
				} `json:"items"`
			} `json:"vulnerabilities"`
		} `json:"dependencies"`
		RiskFactors []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
			Severity    string `json:"severity"`
		} `json:"riskFactors"`
	} `json:"analysisModules"`
}

// normalizeStatus maps the poll-endpoint status vocabulary onto the three
// recognized states.
func normalizeStatus(raw string) remoteStatus {
	switch remoteStatus(raw) {
	case statusPending, statusCompleted, statusFailed:
		return remoteStatus(raw)
	case "in_progress":
		return statusPending
	default:
		// The remote's status vocabulary is not fully pinned down. Unknown
		// values resolve as non-terminal (pending) rather than guessing they
		// mean failure, since the bounded poll wall-clock already turns a
		// stuck poll into a timeout.
		return statusPending
	}
}

func isTerminal(s remoteStatus) bool {
	return s == statusCompleted || s == statusFailed
}
