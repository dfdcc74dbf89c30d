package resolver

import (
	"context"
	"errors"

	"github.com/use-agent/livehls/engine"
	"github.com/use-agent/livehls/models"
)

// Kind is the closed set of resolution results.
type Kind string

const (
	KindRedirect      Kind = "redirect"
	KindOffline       Kind = "offline"
	KindNotFound      Kind = "not_found"
	KindBadRequest    Kind = "bad_request"
	KindUpstreamError Kind = "upstream_error"
)

// Reasons carried by NotFound and BadRequest outcomes.
const (
	ReasonMissingHandle = "missing 'id' parameter (channel handle)"
	ReasonNoManifest    = "no HLS manifest"
	ReasonNotLive       = "manifest is not live"
)

// Outcome is the single result of one resolution. Only the fields relevant to
// Kind are set.
type Outcome struct {
	Kind   Kind   `json:"kind"`
	Handle string `json:"handle,omitempty"`

	// URL is the manifest URL of a Redirect.
	URL string `json:"url,omitempty"`

	// Reason explains NotFound and BadRequest.
	Reason string `json:"reason,omitempty"`

	// Detail, Code and StatusCode describe an UpstreamError.
	Detail     string `json:"detail,omitempty"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	VideoID  string      `json:"video_id,omitempty"`
	VideoURL string      `json:"video_url,omitempty"`
	Title    string      `json:"title,omitempty"`
	Tier     engine.Tier `json:"tier,omitempty"`

	// CacheHit is set by the outcome cache when it answered.
	CacheHit bool  `json:"-"`
	Err      error `json:"-"`
}

// Negative reports whether the outcome is a legitimate "nothing to play"
// answer rather than a fault or a bad request.
func (o Outcome) Negative() bool {
	return o.Kind == KindOffline || o.Kind == KindNotFound
}

func redirect(manifestURL string) Outcome {
	return Outcome{Kind: KindRedirect, URL: manifestURL}
}

func offline() Outcome {
	return Outcome{Kind: KindOffline}
}

func notFound(reason string) Outcome {
	return Outcome{Kind: KindNotFound, Reason: reason}
}

func badRequest(reason string) Outcome {
	return Outcome{Kind: KindBadRequest, Reason: reason}
}

// upstreamError classifies err. Deadline overruns always carry the timeout
// code, whichever layer noticed them.
func upstreamError(err error) Outcome {
	out := Outcome{Kind: KindUpstreamError, Err: err, Code: models.ErrCodeInternal}
	if err == nil {
		return out
	}
	out.Detail = err.Error()

	var re *models.ResolveError
	if errors.As(err, &re) {
		out.Code = re.Code
		out.StatusCode = re.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Code = models.ErrCodeTimeout
	}
	return out
}
