// Package retry implements bounded-attempt exponential backoff with
// jitter, honoring Retry-After hints, per spec.md section 4.8.
//
// Grounded directly on email-service/app/retry/retry.go's
// Config/LoadConfig/IsRetryable/CalculateDelay/Retry shape, with
// IsRetryable reclassified against internal/apperrors.Code (spec.md
// section 7's taxonomy) instead of the teacher's email-specific codes,
// and CalculateDelay given +/-20% jitter the way
// join-service/internal/infrastructure/postgres/outbox_worker.go's
// computeNextRetry jitters its backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tzeusy/switchboard/internal/apperrors"
)

type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func LoadConfig() *Config {
	maxRetries, _ := strconv.Atoi(os.Getenv("MAX_RETRIES"))
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialDelay, _ := time.ParseDuration(os.Getenv("RETRY_INITIAL_DELAY"))
	if initialDelay == 0 {
		initialDelay = 1 * time.Second
	}
	maxDelay, _ := time.ParseDuration(os.Getenv("RETRY_MAX_DELAY"))
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}
	return &Config{MaxRetries: maxRetries, InitialDelay: initialDelay, MaxDelay: maxDelay}
}

// IsRetryable classifies by apperrors.Code. validation_error and
// policy_violation are the non-retriable categories named in spec.md
// section 4.8; everything else — including an error with no AppError at
// all — is treated as retryable, matching the teacher's
// "default: assume retryable for unknown errors" posture.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	ae, ok := apperrors.As(err)
	if !ok {
		return true
	}
	switch ae.Code {
	case apperrors.CodeValidation, apperrors.CodePolicyViolation:
		return false
	default:
		return true
	}
}

// CalculateDelay computes exponential backoff with +/-20% jitter, capped
// at config.MaxDelay.
func CalculateDelay(attempt int, config *Config) time.Duration {
	base := float64(config.InitialDelay) * math.Pow(2, float64(attempt))
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	delay := time.Duration(base * jitter)
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

type retryAfterKey struct{}

// retryAfterSignal is a mutable one-shot cell threaded through ctx so fn
// can report a server-supplied Retry-After hint back to the enclosing
// Retry call. A plain context.WithValue round-trip can't do this alone:
// context.Context is immutable, so a value fn attaches to the ctx it was
// handed never reaches the caller's variable — the cell is the side
// channel that makes WithRetryAfter's value observable by Retry.
type retryAfterSignal struct {
	mu sync.Mutex
	d  time.Duration
	ok bool
}

func (s *retryAfterSignal) set(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d, s.ok = d, true
}

func (s *retryAfterSignal) take() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.d, s.ok
	s.ok = false
	return d, ok
}

// WithRetryAfter reports a server-supplied Retry-After hint to the
// Retry call enclosing ctx; the next backoff computed will honor it
// instead of the exponential schedule. A no-op if ctx did not originate
// from Retry.
func WithRetryAfter(ctx context.Context, d time.Duration) {
	if sig, ok := ctx.Value(retryAfterKey{}).(*retryAfterSignal); ok {
		sig.set(d)
	}
}

// Retry executes fn, retrying non-terminal failures up to MaxRetries
// times with backoff. fn may report a Retry-After hint via WithRetryAfter
// on the ctx it is passed before returning an error.
func Retry(ctx context.Context, config *Config, fn func(ctx context.Context) error) error {
	var lastErr error
	signal := &retryAfterSignal{}
	callCtx := context.WithValue(ctx, retryAfterKey{}, signal)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateDelay(attempt-1, config)
			if hint, ok := signal.take(); ok {
				delay = hint
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}
	}

	return apperrors.NewRetryExhausted(fmt.Sprintf("max retries (%d) exceeded", config.MaxRetries), lastErr)
}
