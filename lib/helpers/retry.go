package helpers

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"
)

func NewBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// Retry calls fn up to attempts times, sleeping with exponential backoff in
// between. It returns the last error, or ctx.Err() if ctx ends first.
// Only the settings of cfg are read, so one cfg can serve concurrent calls.
func Retry(ctx context.Context, attempts int, cfg *backoff.Backoff, name string, fn func(context.Context) error) error {
	if cfg == nil {
		cfg = NewBackoff()
	}
	b := &backoff.Backoff{Min: cfg.Min, Max: cfg.Max, Factor: cfg.Factor, Jitter: cfg.Jitter}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		wait := b.Duration()
		log.Debugf("%s failed (attempt %d/%d), retrying in %s: %v", name, i+1, attempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
