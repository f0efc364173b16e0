package quota

import (
	"context"
	"errors"
	"time"
)

// ErrRunLimitReached is returned by Limiter.Wait once the run's request
// budget is spent. The orchestrator treats it as a clean stop, not a crash.
var ErrRunLimitReached = errors.New("run request limit reached")

// Limiter paces upstream requests inside a single run: a hard per-run
// ceiling plus a minimum delay between consecutive requests.
//
// It is a cooperative, single-threaded device — the orchestrator calls Wait
// sequentially before each request and never issues concurrent requests.
// The global budget lives in the Tracker; the orchestrator sizes the run's
// ceiling from it once at startup rather than consulting it per call.
type Limiter struct {
	limit    int
	minDelay time.Duration

	count    int
	lastAt   time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewLimiter returns a Limiter allowing at most limit requests this run,
// at least minDelay apart.
func NewLimiter(limit int, minDelay time.Duration) *Limiter {
	return &Limiter{
		limit:    limit,
		minDelay: minDelay,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Wait blocks until the next request may be sent. It fails immediately with
// ErrRunLimitReached when the run budget is spent, and with the context
// error if ctx ends during the pacing sleep.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.count >= l.limit {
		return ErrRunLimitReached
	}

	if !l.lastAt.IsZero() {
		if remaining := l.minDelay - l.now().Sub(l.lastAt); remaining > 0 {
			if err := l.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}

	l.lastAt = l.now()
	l.count++
	return nil
}

// Used reports how many requests this run has recorded.
func (l *Limiter) Used() int { return l.count }

// Remaining reports how many requests the run may still send.
func (l *Limiter) Remaining() int {
	if r := l.limit - l.count; r > 0 {
		return r
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
