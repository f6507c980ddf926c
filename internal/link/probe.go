// internal/link/probe.go
package link

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProbeConfig bounds the startup reachability check.
type ProbeConfig struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultProbe is three attempts, 1s then 2s apart.
var DefaultProbe = ProbeConfig{
	Attempts: 3,
	Initial:  time.Second,
	Max:      10 * time.Second,
}

// Probe retries EnsureConnected with exponential backoff.
// It returns the last connection error once attempts are exhausted.
func (l *Link) Probe(ctx context.Context, pc ProbeConfig) error {
	if pc.Attempts < 1 {
		pc.Attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = pc.Initial
	eb.MaxInterval = pc.Max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(pc.Attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return l.EnsureConnected(ctx)
		},
		b,
		func(err error, next time.Duration) {
			l.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("probe failed")
		},
	)
}
