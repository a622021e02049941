package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Outcome classifies the result of one detail fetch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome may be retried locally.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransient
}

// ErrRateLimited lets providers signal throttling that is not an HTTP 429.
var ErrRateLimited = errors.New("rate limited by provider")

// statusCoder is implemented by provider errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// retryAfterer is implemented by provider errors that carry a Retry-After hint.
type retryAfterer interface {
	RetryAfterHint() time.Duration
}

// Classify maps an error from a provider call onto an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrRateLimited) {
		return OutcomeRateLimited
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		switch {
		case code == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case code == http.StatusRequestTimeout, code >= 500:
			return OutcomeTransient
		case code >= 400:
			return OutcomePermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return OutcomeTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return OutcomeTransient
	}

	return OutcomePermanent
}
