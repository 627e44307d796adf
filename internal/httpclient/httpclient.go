// Package httpclient builds the resty.Client shared by the DMS and ledger
// REST clients: base URL, auth header, timeout, and a bounded-backoff retry
// wrapper around the handful of transient statuses both upstream APIs can
// return. Grounded on the teacher's ExecuteWithRetry pattern
// (internal/storage/relationaldb/manager.go), re-expressed over resty's
// hook surface with a real backoff library instead of a hand-rolled loop.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/logging"
)

// RetryableStatuses is the set of HTTP statuses both the DMS and the
// ledger treat as transient.
var RetryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a new resty client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint
	Logger     logging.Logger
}

// New builds a resty.Client with a fixed auth header setter applied by the
// caller (SetHeader/SetAuthScheme), request timeout, and JSON defaults. It
// does not itself retry — callers route individual requests through Do,
// which applies the bounded-backoff policy.
func New(opts Options) *resty.Client {
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	if opts.Logger != nil {
		c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			opts.Logger.Debug("http response", "method", resp.Request.Method, "url", resp.Request.URL, "status", resp.StatusCode())
			return nil
		})
	}
	return c
}

// Do executes build (a closure issuing exactly one resty request) under a
// bounded exponential backoff policy, retrying on transport failures and on
// RetryableStatuses, and translating the outcome into the apperrors
// taxonomy. maxRetries of 0 disables retrying. The last response received
// (even a transient-status one, if retries were exhausted) is always
// returned alongside any error.
func Do(ctx context.Context, maxRetries uint, build func() (*resty.Response, error)) (*resty.Response, error) {
	var last *resty.Response

	op := func() (struct{}, error) {
		resp, err := build()
		if err != nil {
			return struct{}{}, apperrors.NewTransportError("http request", err)
		}
		last = resp
		if RetryableStatuses[resp.StatusCode()] {
			return struct{}{}, apperrors.NewTransportError("http request",
				errTransientStatus(resp.StatusCode()))
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries+1),
	)
	if err != nil && last == nil {
		return nil, err
	}
	if last != nil && RetryableStatuses[last.StatusCode()] {
		return last, err
	}
	return last, nil
}

type errTransientStatus int

func (e errTransientStatus) Error() string {
	return fmt.Sprintf("transient HTTP status %d", int(e))
}
