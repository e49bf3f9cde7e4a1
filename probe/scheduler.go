package probe

import (
	"context"
	"time"
)

// tickBody runs the per-tick logic of one role. It receives the instant the
// tick began and reports whether the run is complete. A non-nil error ends
// the loop immediately.
type tickBody func(tickStart time.Time) (done bool, err error)

// runTicks drives body at the given period until it reports done. The body's
// processing time is subtracted from the following sleep so the wall-clock
// cadence stays close to period. A tick that overruns the period starts the
// next iteration immediately; missed periods are not caught up, so drift
// accumulates instead of bursting.
func runTicks(ctx context.Context, period time.Duration, body tickBody) error {
	for {
		tickStart := time.Now()

		done, err := body(tickStart)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if elapsed := time.Since(tickStart); elapsed < period {
			timer := time.NewTimer(period - elapsed)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
}
