package healing

import (
	"errors"
	"time"
)

// ErrInvalidMaxAttempts is returned when a retry policy is constructed with
// fewer than one permitted attempt. This is a fatal configuration error and
// is never retried.
var ErrInvalidMaxAttempts = errors.New("retry policy requires max attempts >= 1")

// RetryPolicy controls how many attempts the engine makes and which delay
// precedes each retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// Delays holds the delay preceding each retry. Delays[0] applies to
	// attempt 2; the list is clamped (not cycled) once attempts run past
	// its end. Empty means retries are immediate.
	Delays []time.Duration `yaml:"delays"`
}

// DefaultRetryPolicy returns the policy used when none is configured:
// three attempts, no delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

// NewRetryPolicy validates and returns a retry policy.
func NewRetryPolicy(maxAttempts int, delays ...time.Duration) (RetryPolicy, error) {
	policy := RetryPolicy{MaxAttempts: maxAttempts, Delays: delays}
	if err := policy.Validate(); err != nil {
		return RetryPolicy{}, err
	}
	return policy, nil
}

// Validate checks the policy's configuration invariants.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	return nil
}

// ShouldRetry reports whether another attempt should be scheduled after
// the given attempt number (attempts are numbered from 1).
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// DelayFor returns the delay that should precede nextAttempt, and whether
// a delay is configured at all. The first retry happens at attempt 2,
// hence the nextAttempt-2 indexing; the first attempt never waits.
func (p RetryPolicy) DelayFor(nextAttempt int) (time.Duration, bool) {
	if len(p.Delays) == 0 {
		return 0, false
	}
	index := nextAttempt - 2
	if index < 0 {
		index = 0
	}
	if index > len(p.Delays)-1 {
		index = len(p.Delays) - 1
	}
	return p.Delays[index], true
}
