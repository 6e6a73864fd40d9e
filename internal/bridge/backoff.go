package bridge

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff shapes the delay between connection attempts.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Delay returns the wait before attempt N (1-based).
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return b.InitialDelay
	}
	if b.InitialDelay <= 0 {
		return 0
	}
	if b.Multiplier < 1.0 {
		b.Multiplier = 1.0
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// DialRetry dials like Dial but retries rejected requests, for a counterpart that is
// still starting. Invalid targets fail at once.
func DialRetry[T any](ctx context.Context, binder *Binder, target Target, opts Options[T], b Backoff, attempts int) (*Channel[T], error) {
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c, err := Dial(ctx, binder, target, opts)
		if err == nil {
			return c, nil
		}
		if errors.Is(err, ErrInvalidTarget) || !errors.Is(err, ErrBindRejected) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := b.Delay(attempt, rng)
		log.Debug().Str("target", target.String()).Int("attempt", attempt).Dur("delay", delay).Msg("bridge.DialRetry waiting")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
