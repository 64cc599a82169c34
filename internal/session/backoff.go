package session

import (
	"math"
	"math/rand/v2"
	"time"
)

// ReconnectPolicy configures how the session re-dials after a connection it
// did not close ends.
type ReconnectPolicy struct {
	Enabled   bool
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts of 0 retries forever.
	MaxAttempts int
}

// DefaultReconnectPolicy is exponential backoff from one second up to thirty,
// giving up after ten attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     true,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

type reconnector struct {
	policy  ReconnectPolicy
	attempt int
	jitter  func() float64
}

func newReconnector(policy ReconnectPolicy) *reconnector {
	return &reconnector{policy: policy, jitter: rand.Float64}
}

func (r *reconnector) shouldReconnect() bool {
	if !r.policy.Enabled {
		return false
	}
	return r.policy.MaxAttempts == 0 || r.attempt < r.policy.MaxAttempts
}

// nextDelay doubles the base delay per attempt, adds up to half a base delay
// of jitter and caps the result at MaxDelay.
func (r *reconnector) nextDelay() time.Duration {
	base := float64(r.policy.BaseDelay)
	jitter := r.jitter() * base * 0.5
	delay := time.Duration(math.Min(base*math.Pow(2, float64(r.attempt))+jitter, float64(r.policy.MaxDelay)))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}
