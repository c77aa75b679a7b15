// Package retry decides whether a failed attempt may run again and how
// long to wait before it does. Classification recognizes the error codes
// services use for throttling, clock skew, and transient faults, plus
// transport-level I/O errors; everything else is terminal.
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/acksell/vogels/sdk/protocol"
)

// BackoffFunc returns the wait before a retry. The first retry passes
// attempt 0.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns a capped exponential backoff with full jitter.
// Wait time is: rand(0, min(cap, base * multiplier^attempt))
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func ExponentialBackoff(base time.Duration, multiplier float64, cap time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		factor := 1.0
		for i := 0; i < attempt; i++ {
			factor *= multiplier
		}
		backoff := time.Duration(float64(base) * factor)
		if backoff > cap {
			backoff = cap
		}
		if backoff <= 0 {
			return 0
		}
		// Full jitter: random duration between 0 and backoff
		return time.Duration(rand.Int64N(int64(backoff)))
	}
}

// DefaultBackoff is [ExponentialBackoff] with 50ms base, 2x multiplier, 20s cap.
var DefaultBackoff = ExponentialBackoff(50*time.Millisecond, 2.0, 20*time.Second)

// DefaultMaxAttempts bounds an execution to one initial attempt plus two
// retries.
const DefaultMaxAttempts = 3

// Strategy bounds the attempts of one execution and spaces its retries.
// The zero value never retries; use [Standard] for the default behavior.
type Strategy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   func(error) bool
}

// Standard returns the default strategy: [DefaultMaxAttempts] attempts,
// [DefaultBackoff] between them, [Retryable] classification.
func Standard() Strategy {
	return Strategy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		Retryable:   Retryable,
	}
}

// None returns a strategy that always stops after the first attempt.
func None() Strategy {
	return Strategy{MaxAttempts: 1}
}

// ShouldRetry reports whether another attempt may follow err, given how
// many attempts have already run.
func (s Strategy) ShouldRetry(attempts int, err error) bool {
	max := s.MaxAttempts
	if max <= 0 {
		max = 1
	}
	if attempts >= max {
		return false
	}
	retryable := s.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	return retryable(err)
}

// Delay returns the wait before retry number attempt (zero-based).
func (s Strategy) Delay(attempt int) time.Duration {
	if s.Backoff == nil {
		return DefaultBackoff(attempt)
	}
	return s.Backoff(attempt)
}

var throttleCodes = codeSet(
	"Throttling",
	"ThrottlingException",
	"ThrottledException",
	"RequestThrottled",
	"RequestThrottledException",
	"TooManyRequestsException",
	"ProvisionedThroughputExceededException",
	"TransactionInProgressException",
	"EC2ThrottledException",
	"SlowDown",
	"PriorRequestNotComplete",
	"BandwidthLimitExceeded",
	"LimitExceededException",
)

var clockSkewCodes = codeSet(
	"RequestTimeTooSkewed",
	"RequestExpired",
	"InvalidSignatureException",
	"AuthFailure",
)

var transientCodes = codeSet(
	"RequestTimeout",
	"RequestTimeoutException",
	"IDPCommunicationError",
)

var transientStatuses = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

func codeSet(codes ...string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}

// Retryable is the default classification: throttles, clock skew, and
// transient faults retry; cancellations and marshalling failures never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var merr *protocol.MarshalError
	if errors.As(err, &merr) {
		return false
	}
	return IsThrottle(err) || IsClockSkew(err) || IsTransient(err)
}

// IsThrottle reports whether err is the service shedding load.
func IsThrottle(err error) bool {
	code, ok := errorCode(err)
	return ok && throttleCodes[code]
}

// IsClockSkew reports whether err indicates the request time was rejected.
// A retry gives the transport a chance to resign with a fresh timestamp.
func IsClockSkew(err error) bool {
	code, ok := errorCode(err)
	return ok && clockSkewCodes[code]
}

// IsTransient reports whether err looks like a momentary transport or
// server fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if strings.Contains(err.Error(), "connection reset") {
		return true
	}
	if code, ok := errorCode(err); ok && transientCodes[code] {
		return true
	}
	if status, ok := httpStatus(err); ok && transientStatuses[status] {
		return true
	}
	return false
}

func errorCode(err error) (string, bool) {
	var apiErr protocol.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode(), true
	}
	return "", false
}

func httpStatus(err error) (int, bool) {
	var serr *protocol.ServiceError
	if errors.As(err, &serr) {
		return serr.StatusCode, true
	}
	var rerr *protocol.ResponseError
	if errors.As(err, &rerr) {
		return rerr.StatusCode, true
	}
	return 0, false
}
