package service

import (
	"time"

	"github.com/sebmartin/ve-renogy-rover/internal/core/port"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialReconnectPolicy doubles the wait between open attempts up
// to a ceiling. It never gives up: once the ceiling is reached, every
// subsequent delay equals the ceiling until Reset.
type ExponentialReconnectPolicy struct {
	backoff *backoff.ExponentialBackOff
}

func NewExponentialReconnectPolicy(initialDelay, maxDelay time.Duration) *ExponentialReconnectPolicy {
	return &ExponentialReconnectPolicy{
		backoff: backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initialDelay),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0),
			backoff.WithMaxInterval(maxDelay),
			backoff.WithMaxElapsedTime(0),
		),
	}
}

func (p *ExponentialReconnectPolicy) NextDelay() time.Duration {
	next := p.backoff.NextBackOff()
	if next == backoff.Stop {
		return p.backoff.MaxInterval
	}
	return next
}

func (p *ExponentialReconnectPolicy) Reset() {
	p.backoff.Reset()
}

// ensure interface compliance
var _ port.ReconnectPolicy = (*ExponentialReconnectPolicy)(nil)
