// Client wraps outbound HTTP calls to a butler endpoint with
// request-ID propagation and method-based timeouts.
//
// Grounded on
// bff-service/internal/downstream/httpclient.go's Client.Do shape
// (request-ID injection, per-call timeout, unified error mapping),
// adapted here to a single POST-only route-delivery call instead of a
// general GET/POST wrapper.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/reliability/retry"
)

// HTTPClient delivers a RouteTask/NotifyTask payload to a butler's
// endpoint_url over HTTP, the Transport=http path from C7's registry.
type HTTPClient struct {
	base    *http.Client
	timeout time.Duration
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{base: &http.Client{Timeout: 0}, timeout: timeout}
}

// Deliver POSTs body to endpointURL, returning the response status and
// body, or an apperrors-classified error on transport failure.
func (c *HTTPClient) Deliver(ctx context.Context, requestID, endpointURL string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, apperrors.NewValidation(fmt.Sprintf("cannot marshal dispatch payload: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, apperrors.NewValidation(fmt.Sprintf("cannot build dispatch request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.base.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, apperrors.NewTimeout("dispatch request timed out", err)
		}
		return 0, nil, apperrors.NewDownstreamFailure("dispatch request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	// 429/503 are retriable downstream failures, not policy violations —
	// spec.md section 4.8/7 requires retrying them with backoff honoring
	// any Retry-After hint, per the auth-service rate-limit middleware's
	// integer-seconds Retry-After convention.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			retry.WithRetryAfter(ctx, d)
		}
		return resp.StatusCode, respBody, apperrors.NewDownstreamFailure(fmt.Sprintf("butler returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, respBody, apperrors.NewDownstreamFailure(fmt.Sprintf("butler returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, respBody, apperrors.NewPolicyViolation(fmt.Sprintf("butler rejected dispatch: %d", resp.StatusCode))
	}
	return resp.StatusCode, respBody, nil
}

// parseRetryAfter reads a Retry-After header in the integer-seconds form.
func parseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
